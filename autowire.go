package glpatch

import (
	"slices"
	"strconv"
	"strings"

	"cogentcore.org/core/ordmap"
	"github.com/soypat/glpatch/glbuild"
)

// LinkOption is a candidate source for an input port.
type LinkOption struct {
	Link  Link
	Title string
	// DataSource is set when the option is a data source suggestion not yet
	// registered with the show; Link is nil in that case.
	DataSource  *DataSource
	ContentType glbuild.ContentType
}

// IsChannel reports whether the option reads from a channel.
func (o LinkOption) IsChannel() bool {
	_, ok := o.Link.(ChannelLink)
	return ok
}

// AutoWirer proposes links for the unlinked ports of shader instances.
type AutoWirer struct {
	// Suggest proposes new data sources for a port with no existing data
	// source candidate. Defaults to CoreSuggestions.
	Suggest func(port glbuild.InputPort) []DataSource
}

// PortKey addresses an input port of an instance.
type PortKey struct {
	InstanceID string
	PortID     string
}

// Wiring holds the candidate links for every unlinked port of the wired
// instances, in instance then port declaration order.
type Wiring struct {
	options ordmap.Map[PortKey, []LinkOption]
	titles  map[string]string
}

// Wire computes candidate links for the given instances of the patch, or all
// of its instances when none are given. Only structural problems such as
// links to undeclared ports are returned as errors; ambiguity is reported
// by the Wiring.
func (aw *AutoWirer) Wire(show *Show, patchID string, instanceIDs ...string) (*Wiring, error) {
	p, ok := show.Patch(patchID)
	if !ok {
		return nil, linkErr(ErrMissingPatch, "", "", strconv.Quote(patchID))
	}
	if len(instanceIDs) == 0 {
		instanceIDs = p.instances
	}
	suggest := aw.Suggest
	if suggest == nil {
		suggest = CoreSuggestions
	}
	// Producers other instances can read from.
	type producer struct {
		inst *ShaderInstance
		open *OpenShader
	}
	var producers []producer
	for _, id := range p.instances {
		si, ok := show.Instance(id)
		if !ok {
			return nil, linkErr(ErrMissingInstance, id, "", "listed in patch "+p.ID)
		}
		open, err := show.OpenShader(si.ShaderID)
		if err != nil {
			return nil, err
		}
		producers = append(producers, producer{inst: si, open: open})
	}

	w := &Wiring{titles: make(map[string]string)}
	for _, id := range instanceIDs {
		si, err := p.instance(id)
		if err != nil {
			return nil, err
		}
		open, err := show.OpenShader(si.ShaderID)
		if err != nil {
			return nil, err
		}
		for _, port := range si.LinkedPorts() {
			if _, ok := open.Input(port); !ok {
				return nil, linkErr(ErrUnknownPort, id, port, "not declared by "+strconv.Quote(open.Title()))
			}
		}
		w.titles[id] = open.Title()
		for _, in := range open.Inputs {
			if _, linked := si.IncomingLink(in.ID); linked {
				continue
			}
			var opts []LinkOption
			for _, kv := range show.dataSources.Order {
				if kv.Value.ContentType.Equal(in.ContentType) {
					opts = append(opts, LinkOption{Link: DataSourceLink{DataSourceID: kv.Key}, Title: kv.Value.Title, ContentType: kv.Value.ContentType})
				}
			}
			if len(opts) == 0 {
				for _, ds := range suggest(in) {
					ds := ds
					if !ds.ContentType.Equal(in.ContentType) {
						continue
					}
					opts = append(opts, LinkOption{DataSource: &ds, Title: ds.Title, ContentType: ds.ContentType})
				}
			}
			for _, pr := range producers {
				if pr.inst.ID == id || !pr.open.Output.ContentType.Equal(in.ContentType) {
					continue
				}
				opts = append(opts, LinkOption{
					Link:        ShaderOutLink{InstanceID: pr.inst.ID, PortID: pr.open.Output.ID},
					Title:       pr.open.Title() + " output",
					ContentType: pr.open.Output.ContentType,
				})
			}
			// A channel only the wired instance publishes on would resolve to nothing.
			var chans []string
			for _, pr := range producers {
				if pr.inst.ID == id {
					continue
				}
				if pr.open.Output.ContentType.Equal(in.ContentType) && !slices.Contains(chans, pr.inst.Channel) {
					chans = append(chans, pr.inst.Channel)
					opts = append(opts, LinkOption{
						Link:        ChannelLink{Channel: pr.inst.Channel},
						Title:       "Channel " + pr.inst.Channel,
						ContentType: in.ContentType,
					})
				}
			}
			w.options.Add(PortKey{InstanceID: id, PortID: in.ID}, preferChannel(opts))
		}
	}
	return w, nil
}

// preferChannel picks the channel option when it is the only one among
// several candidates.
func preferChannel(opts []LinkOption) []LinkOption {
	if len(opts) < 2 {
		return opts
	}
	idx := -1
	for i, o := range opts {
		if o.IsChannel() {
			if idx >= 0 {
				return opts
			}
			idx = i
		}
	}
	if idx < 0 {
		return opts
	}
	return opts[idx : idx+1]
}

// Ports returns the wired ports in order.
func (w *Wiring) Ports() []PortKey { return w.options.Keys() }

// LinkOptionsFor returns the candidates of an instance port.
func (w *Wiring) LinkOptionsFor(instanceID, portID string) ([]LinkOption, error) {
	opts, ok := w.options.ValueByKeyTry(PortKey{InstanceID: instanceID, PortID: portID})
	if !ok {
		return nil, linkErr(ErrUnknownPort, instanceID, portID, "not wired")
	}
	return opts, nil
}

// IsAmbiguous reports whether any port has more than one candidate.
func (w *Wiring) IsAmbiguous() bool {
	for _, kv := range w.options.Order {
		if len(kv.Value) > 1 {
			return true
		}
	}
	return false
}

// DescribeAmbiguity returns one line per ambiguous port:
//
//	<shader title>: <port> -> (<option>,<option>)
func (w *Wiring) DescribeAmbiguity() string {
	var sb strings.Builder
	for _, kv := range w.options.Order {
		if len(kv.Value) < 2 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(w.titles[kv.Key.InstanceID])
		sb.WriteString(": ")
		sb.WriteString(kv.Key.PortID)
		sb.WriteString(" -> (")
		for i, o := range kv.Value {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(o.Title)
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// TakeFirstIfAmbiguous returns a copy of the wiring where every ambiguous
// port keeps only its first candidate.
func (w *Wiring) TakeFirstIfAmbiguous() *Wiring {
	return w.mapOptions(func(opts []LinkOption) []LinkOption {
		if len(opts) > 1 {
			return opts[:1]
		}
		return opts
	})
}

// AcceptChannelLinks returns a copy of the wiring where every ambiguous port
// with a channel candidate keeps only the first one.
func (w *Wiring) AcceptChannelLinks() *Wiring {
	return w.mapOptions(func(opts []LinkOption) []LinkOption {
		if len(opts) < 2 {
			return opts
		}
		for i, o := range opts {
			if o.IsChannel() {
				return opts[i : i+1]
			}
		}
		return opts
	})
}

func (w *Wiring) mapOptions(fn func([]LinkOption) []LinkOption) *Wiring {
	c := &Wiring{titles: w.titles}
	for _, kv := range w.options.Order {
		c.options.Add(kv.Key, slices.Clip(fn(kv.Value)))
	}
	return c
}

// Commit links every port with exactly one candidate. Suggested data sources
// are added to the show. Ambiguous ports and ports without candidates are
// left unlinked. The show is not modified when an error is returned.
func (w *Wiring) Commit(show *Show) error {
	instances := make([]*ShaderInstance, len(w.options.Order))
	for i, kv := range w.options.Order {
		if len(kv.Value) != 1 {
			continue
		}
		si, ok := show.Instance(kv.Key.InstanceID)
		if !ok {
			return linkErr(ErrMissingInstance, kv.Key.InstanceID, kv.Key.PortID, "")
		}
		instances[i] = si
	}
	for i, kv := range w.options.Order {
		si := instances[i]
		if si == nil {
			continue
		}
		opt := kv.Value[0]
		l := opt.Link
		if opt.DataSource != nil {
			l = DataSourceLink{DataSourceID: show.AddDataSource(*opt.DataSource)}
		}
		si.Link(kv.Key.PortID, l)
	}
	return nil
}
