package scene

// Bind groups shared by every graphics pipeline of the scene:
//
//	group 0: pass constants, group 1: object constants, group 2: material constants,
//	group 3: wave height map (displaced pipeline only)
const (
	passSlot     = 0
	objectSlot   = 1
	materialSlot = 2
)

// commonWGSL is expanded by shader.PreProcessor before pipeline creation.
const commonWGSL = `
//@waves:include light
//@waves:include pass_constants
//@waves:include object_constants
//@waves:include material_constants
//@waves:include vertex

//@waves:group 0 0 storage_uniform cbPass pass_constants
//@waves:group 1 0 storage_uniform cbObject object_constants
//@waves:group 2 0 storage_uniform cbMaterial material_constants

struct VertexOut {
    @builtin(position) posH: vec4<f32>,
    @location(0) posW: vec3<f32>,
    @location(1) normalW: vec3<f32>,
    @location(2) texC: vec2<f32>,
}

fn transformVertex(pos: vec3<f32>, normal: vec3<f32>, texC: vec2<f32>) -> VertexOut {
    var out: VertexOut;
    let posW = cbObject.world * vec4<f32>(pos, 1.0);
    out.posW = posW.xyz;
    out.posH = cbPass.viewProj * posW;
    out.normalW = (cbObject.world * vec4<f32>(normal, 0.0)).xyz;
    out.texC = (cbMaterial.matTransform * cbObject.texTransform * vec4<f32>(texC, 0.0, 1.0)).xy;
    return out;
}
`

const vertexWGSL = commonWGSL + `
@vertex
fn vs_main(v: VertexIn) -> VertexOut {
    return transformVertex(v.pos, v.normal, v.texC);
}
`

// displacedVertexWGSL offsets a flat grid by the wave height map and rebuilds the
// normal from central differences, like the CPU field does.
const displacedVertexWGSL = commonWGSL + `
@group(3) @binding(0) var<storage, read> heights: array<f32>;

@vertex
fn vs_main(v: VertexIn, @builtin(vertex_index) vid: u32) -> VertexOut {
    let cols = u32(round(1.0 / cbObject.displacementMapTexelSize.x));
    let rows = u32(round(1.0 / cbObject.displacementMapTexelSize.y));
    let row = vid / cols;
    let col = vid % cols;

    var pos = v.pos;
    pos.y = pos.y + heights[vid];

    var normal = vec3<f32>(0.0, 1.0, 0.0);
    if (row > 0u && col > 0u && row < rows - 1u && col < cols - 1u) {
        let l = heights[vid - 1u];
        let r = heights[vid + 1u];
        let t = heights[vid - cols];
        let b = heights[vid + cols];
        normal = normalize(vec3<f32>(l - r, 2.0 * cbObject.gridSpatialStep, t - b));
    }
    return transformVertex(pos, normal, v.texC);
}
`

const fragmentWGSL = commonWGSL + `
fn schlickFresnel(r0: vec3<f32>, normal: vec3<f32>, toLight: vec3<f32>) -> vec3<f32> {
    let f0 = 1.0 - saturate(dot(normal, toLight));
    return r0 + (1.0 - r0) * (f0 * f0 * f0 * f0 * f0);
}

fn blinnPhong(strength: vec3<f32>, toLight: vec3<f32>, normal: vec3<f32>, toEye: vec3<f32>) -> vec3<f32> {
    let m = (1.0 - cbMaterial.roughness) * 256.0;
    let halfVec = normalize(toEye + toLight);
    let roughness = (m + 8.0) * pow(max(dot(halfVec, normal), 0.0), m) / 8.0;
    var specular = schlickFresnel(cbMaterial.fresnelR0, halfVec, toLight) * roughness;
    specular = specular / (specular + 1.0);
    return (cbMaterial.diffuseAlbedo.rgb + specular) * strength;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    let normal = normalize(in.normalW);
    let toEye = normalize(cbPass.eyePosW - in.posW);

    var lit = cbPass.ambientLight.rgb * cbMaterial.diffuseAlbedo.rgb;
    for (var i = 0u; i < 3u; i = i + 1u) {
        let light = cbPass.lights[i];
        let toLight = -light.direction;
        let strength = light.strength * max(dot(toLight, normal), 0.0);
        lit = lit + blinnPhong(strength, toLight, normal, toEye);
    }
    return vec4<f32>(lit, cbMaterial.diffuseAlbedo.a);
}
`
