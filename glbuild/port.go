package glbuild

// ReturnValuePortID is the id of an output port carried by a function's return value.
const ReturnValuePortID = "_"

// OutputKind says how a shader hands its result back to the caller.
type OutputKind uint8

const (
	_ OutputKind = iota
	// ReturnValue outputs are the entry point's return value.
	ReturnValue
	// OutParam outputs are written through an out parameter of the entry point.
	OutParam
	// OutGlobal outputs are written to a global such as gl_FragColor.
	OutGlobal
)

func (k OutputKind) String() string {
	switch k {
	case ReturnValue:
		return "return"
	case OutParam:
		return "out-param"
	case OutGlobal:
		return "out-global"
	}
	return "OutputKind(?)"
}

// InputPort is a value a shader consumes, either a uniform (IsGlobal) or an
// entry point parameter (IsParam).
type InputPort struct {
	ID          string
	Type        string
	Title       string
	ContentType ContentType
	IsGlobal    bool
	IsParam     bool
	// Index is the parameter position when IsParam is set.
	Index int
}

// OutputPort is the value a shader produces.
type OutputPort struct {
	ID          string
	Type        string
	Title       string
	Kind        OutputKind
	ContentType ContentType
}

// IsReturnValue reports whether the output is the entry point's return value.
func (o OutputPort) IsReturnValue() bool { return o.Kind == ReturnValue }

// IsParam reports whether the output is written through an out parameter.
func (o OutputPort) IsParam() bool { return o.Kind == OutParam }
