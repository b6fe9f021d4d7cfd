package glpatch

import (
	"slices"
	"strconv"
)

// track identifies the stack of instances publishing one content type on one channel.
type track struct {
	channel     string
	contentType string
}

func (t track) String() string { return t.channel + "/" + t.contentType }

type layer struct {
	inst  *ShaderInstance
	open  *OpenShader
	order int
}

// portDiagram indexes the instances of a patch by the track they publish on.
// Each track is sorted top first: priority descending, then later insertion first.
type portDiagram struct {
	tracks map[track][]layer
	open   map[string]*OpenShader
}

func newPortDiagram(show *Show, p *Patch) (*portDiagram, error) {
	d := &portDiagram{tracks: make(map[track][]layer), open: make(map[string]*OpenShader)}
	for order, id := range p.instances {
		si, ok := show.Instance(id)
		if !ok {
			return nil, linkErr(ErrMissingInstance, id, "", "listed in patch "+p.ID)
		}
		open, err := show.OpenShader(si.ShaderID)
		if err != nil {
			return nil, &LinkError{Kind: KindOf(err), Instance: id, Detail: "opening shader " + strconv.Quote(si.ShaderID), Err: err}
		}
		d.open[id] = open
		t := track{channel: si.Channel, contentType: open.Output.ContentType.ID()}
		d.tracks[t] = append(d.tracks[t], layer{inst: si, open: open, order: order})
	}
	for _, layers := range d.tracks {
		slices.SortStableFunc(layers, func(a, b layer) int {
			switch {
			case a.inst.Priority > b.inst.Priority:
				return -1
			case a.inst.Priority < b.inst.Priority:
				return 1
			}
			return b.order - a.order
		})
	}
	return d, nil
}

// top returns the instance on top of the track.
func (d *portDiagram) top(t track) (layer, bool) {
	layers := d.tracks[t]
	if len(layers) == 0 {
		return layer{}, false
	}
	return layers[0], true
}

// below returns the instance directly under instanceID on the track.
func (d *portDiagram) below(t track, instanceID string) (layer, bool) {
	layers := d.tracks[t]
	for i, l := range layers {
		if l.inst.ID == instanceID {
			if i+1 < len(layers) {
				return layers[i+1], true
			}
			return layer{}, false
		}
	}
	return layer{}, false
}

// publishes reports whether the instance is on track t.
func (d *portDiagram) publishes(t track, instanceID string) bool {
	for _, l := range d.tracks[t] {
		if l.inst.ID == instanceID {
			return true
		}
	}
	return false
}
