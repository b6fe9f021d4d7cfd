package glpatch

// Link is the source feeding an input port. It is one of DataSourceLink,
// ShaderOutLink, ChannelLink or OutputLink.
type Link interface {
	isLink()
	String() string
}

// DataSourceLink feeds a port from a data source of the show.
type DataSourceLink struct {
	DataSourceID string
}

// ShaderOutLink feeds a port from the output of another shader instance.
type ShaderOutLink struct {
	InstanceID string
	PortID     string
}

// ChannelLink feeds a port from whichever shader is on top of a named channel
// for the port's content type.
type ChannelLink struct {
	Channel string
}

// OutputLink marks an instance output as feeding the patch output PortID.
// It is not valid as the source of an input port.
type OutputLink struct {
	PortID string
}

func (DataSourceLink) isLink() {}
func (ShaderOutLink) isLink()  {}
func (ChannelLink) isLink()    {}
func (OutputLink) isLink()     {}

func (l DataSourceLink) String() string { return "datasource:" + l.DataSourceID }
func (l ShaderOutLink) String() string  { return "shader-out:" + l.InstanceID + "." + l.PortID }
func (l ChannelLink) String() string    { return "channel:" + l.Channel }
func (l OutputLink) String() string     { return "output:" + l.PortID }
