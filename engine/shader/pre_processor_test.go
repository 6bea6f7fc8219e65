package shader

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const annotatedSource = `
//@waves:include light
//@waves:include pass_constants
//@waves:include light
//@waves:include vertex

//@waves:group 0 0 storage_uniform cbPass pass_constants
//@waves:group 1 0 storage_read lights array<light>

@vertex
fn vs_main(v: VertexIn) -> @builtin(position) vec4<f32> {
    return cbPass.viewProj * vec4<f32>(v.pos, 1.0);
}
`

func TestPreProcessorExpandsAnnotations(t *testing.T) {
	pp := NewPreProcessor()
	assert.Nil(t, pp.Declarations())

	out, err := pp.Process(annotatedSource)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "struct Light {"))
	assert.Contains(t, out, "@group(0) @binding(0) var<uniform> cbPass: PassConstants;")
	assert.Contains(t, out, "@group(1) @binding(0) var<storage, read> lights: array<Light>;")
	assert.NotContains(t, out, annotationPrefix)

	decls := pp.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, 0, *decls[0].Group)
	assert.Equal(t, AnnotationArg("cbPass"), decls[0].Args[1])
	assert.Equal(t, 1, *decls[1].Group)
	assert.Equal(t, 8, decls[1].Line)
}

func TestExpandedStructsMatchGoLayouts(t *testing.T) {
	pp := NewPreProcessor()
	out, err := pp.Process(annotatedSource)
	require.NoError(t, err)

	ref, err := Reflect(out, StageVertex)
	require.NoError(t, err)
	assert.Equal(t, uint64(unsafe.Sizeof(common.Light{})), ref.StructSizes["Light"])
	assert.Equal(t, uint64(unsafe.Sizeof(common.PassConstants{})), ref.StructSizes["PassConstants"])
	require.Len(t, ref.VertexLayouts, 1)
	assert.Equal(t, uint64(unsafe.Sizeof(common.Vertex{})), ref.VertexLayouts[0].ArrayStride)
}

func TestPreProcessorRejectsMalformedAnnotations(t *testing.T) {
	for _, src := range []string{
		"//@waves:",
		"//@waves:include",
		"//@waves:include camera",
		"//@waves:group 0 x storage_uniform cbPass pass_constants",
		"//@waves:group 0 0 storage_push cbPass pass_constants",
		"//@waves:group 0 0 storage_uniform cbPass",
		"//@waves:provider 0 0 material",
	} {
		_, err := NewPreProcessor().Process(src)
		assert.ErrorIs(t, err, ErrMalformedAnnotation, src)
	}
}
