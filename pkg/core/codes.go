package core

// Handle codes reported to the coordinator.
const (
	SuccessCode = 200
	FailCode    = 500
	TimeoutCode = 502
)

// BlockStrategy governs admission of a trigger whose handler is already running.
type BlockStrategy int

const (
	SerialExecution BlockStrategy = iota
	DiscardLater
	CoverEarly
	OtherStrategy
)

// ParseBlockStrategy maps the wire name to a BlockStrategy. Unknown or empty
// names map to OtherStrategy.
func ParseBlockStrategy(s string) BlockStrategy {
	switch s {
	case "SERIAL_EXECUTION":
		return SerialExecution
	case "DISCARD_LATER":
		return DiscardLater
	case "COVER_EARLY":
		return CoverEarly
	default:
		return OtherStrategy
	}
}

func (b BlockStrategy) String() string {
	switch b {
	case SerialExecution:
		return "SERIAL_EXECUTION"
	case DiscardLater:
		return "DISCARD_LATER"
	case CoverEarly:
		return "COVER_EARLY"
	default:
		return "OTHER"
	}
}

// GlueType identifies how the coordinator expects the job source to be run.
type GlueType int

const (
	GlueBean GlueType = iota
	GlueGroovy
	GlueShell
	GluePython
	GluePHP
	GlueNodeJS
	GluePowerShell
)

var glueNames = map[GlueType]string{
	GlueBean:       "BEAN",
	GlueGroovy:     "GLUE_GROOVY",
	GlueShell:      "GLUE_SHELL",
	GluePython:     "GLUE_PYTHON",
	GluePHP:        "GLUE_PHP",
	GlueNodeJS:     "GLUE_NODEJS",
	GluePowerShell: "GLUE_POWERSHELL",
}

// ParseGlueType maps the wire name to a GlueType.
func ParseGlueType(s string) (GlueType, bool) {
	for g, name := range glueNames {
		if name == s {
			return g, true
		}
	}
	return GlueBean, false
}

func (g GlueType) String() string {
	if name, ok := glueNames[g]; ok {
		return name
	}
	return glueNames[GlueBean]
}

// IsScript reports whether the glue source is an interpreted script.
func (g GlueType) IsScript() bool {
	return g != GlueBean && g != GlueGroovy
}

// Cmd returns the interpreter for script glue types.
func (g GlueType) Cmd() string {
	switch g {
	case GlueShell:
		return "bash"
	case GluePython:
		return "python"
	case GluePHP:
		return "php"
	case GlueNodeJS:
		return "node"
	case GluePowerShell:
		return "powershell"
	default:
		return ""
	}
}

// Suffix returns the script file extension.
func (g GlueType) Suffix() string {
	switch g {
	case GlueShell:
		return ".sh"
	case GluePython:
		return ".py"
	case GluePHP:
		return ".php"
	case GlueNodeJS:
		return ".js"
	case GluePowerShell:
		return ".ps1"
	default:
		return ""
	}
}
