package glpatch

import (
	"sync"

	"github.com/soypat/glpatch/glbuild/glsllib"
)

var guruMeditation = sync.OnceValue(func() *LinkedPatch {
	src := glsllib.GuruMeditation()
	show := NewShow("Guru Meditation")
	shaderID := show.AddShader(src.Title, src.Src)
	p := show.NewPatch(AllSurfaces())
	si, err := p.AddShaderInstance(shaderID, InstanceConfig{})
	if err != nil {
		panic(err)
	}
	si.Link("time", DataSourceLink{DataSourceID: show.AddDataSource(TimeSource())})
	si.Link("fragCoord", DataSourceLink{DataSourceID: show.AddDataSource(RasterCoordinateSource())})
	lp, err := LinkPatch(show, p.ID, Request{})
	if err != nil {
		panic("guru meditation shader does not link: " + err.Error())
	}
	return lp
})

// GuruMeditation returns the program rendered when nothing else can be: a
// blinking pattern that always links and compiles.
func GuruMeditation() *LinkedPatch { return guruMeditation() }
