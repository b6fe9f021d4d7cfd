package glpatch

import (
	"fmt"
	"slices"
	"strconv"
)

// Patch is the set of shader instances rendering to a selection of surfaces.
// Instances are kept in the order they were added; later instances layer on
// top of earlier ones with the same priority.
type Patch struct {
	ID        string
	Surfaces  Surfaces
	instances []string
	show      *Show
}

// Instances returns the ids of the patch's instances in insertion order.
func (p *Patch) Instances() []string { return slices.Clone(p.instances) }

// AddShaderInstance places the shader in the patch.
func (p *Patch) AddShaderInstance(shaderID string, cfg InstanceConfig) (*ShaderInstance, error) {
	if _, ok := p.show.Shader(shaderID); !ok {
		return nil, linkErr(ErrMissingShader, "", "", strconv.Quote(shaderID))
	}
	id := cfg.ID
	if id == "" {
		id = shaderID
	}
	if _, taken := p.show.instances.ValueByKeyTry(id); taken {
		if cfg.ID != "" {
			return nil, fmt.Errorf("instance id %q already in use", cfg.ID)
		}
		id = uniqueID(id, func(id string) bool {
			_, taken := p.show.instances.ValueByKeyTry(id)
			return taken
		})
	}
	ch := cfg.Channel
	if ch == "" {
		ch = DefaultChannel
	}
	si := &ShaderInstance{ID: id, ShaderID: shaderID, Channel: ch, Priority: cfg.Priority}
	p.show.instances.Add(id, si)
	p.instances = append(p.instances, id)
	return si, nil
}

// Link wires portID of the instance to l. The port must be declared by the
// instance's shader.
func (p *Patch) Link(instanceID, portID string, l Link) error {
	si, err := p.instance(instanceID)
	if err != nil {
		return err
	}
	open, err := p.show.OpenShader(si.ShaderID)
	if err != nil {
		return err
	}
	if err := p.show.checkLink(si, open, portID, l); err != nil {
		return err
	}
	si.Link(portID, l)
	return nil
}

// FindShaderInstanceFor returns the first instance of the shader in the patch.
func (p *Patch) FindShaderInstanceFor(shaderID string) (*ShaderInstance, bool) {
	for _, id := range p.instances {
		si, ok := p.show.Instance(id)
		if ok && si.ShaderID == shaderID {
			return si, true
		}
	}
	return nil, false
}

// Remove deletes the instance from the patch and the show. Links of other
// instances reading its output are removed too.
func (p *Patch) Remove(instanceID string) error {
	idx := slices.Index(p.instances, instanceID)
	if idx < 0 {
		return linkErr(ErrMissingInstance, instanceID, "", "not in patch "+p.ID)
	}
	p.instances = slices.Delete(p.instances, idx, idx+1)
	p.show.instances.DeleteKey(instanceID)
	for _, kv := range p.show.instances.Order {
		si := kv.Value
		for _, port := range si.LinkedPorts() {
			l, _ := si.IncomingLink(port)
			if so, ok := l.(ShaderOutLink); ok && so.InstanceID == instanceID {
				si.Unlink(port)
			}
		}
	}
	return nil
}

func (p *Patch) instance(id string) (*ShaderInstance, error) {
	if !slices.Contains(p.instances, id) {
		return nil, linkErr(ErrMissingInstance, id, "", "not in patch "+p.ID)
	}
	si, ok := p.show.Instance(id)
	if !ok {
		return nil, linkErr(ErrMissingInstance, id, "", "")
	}
	return si, nil
}
