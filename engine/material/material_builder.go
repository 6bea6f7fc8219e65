package material

// MaterialBuilderOption is a function that configures a material instance during construction.
type MaterialBuilderOption func(*material)

// WithDiffuseAlbedo is an option builder that sets the RGBA albedo of the material.
//
// Parameters:
//   - albedo: the albedo as RGBA float32 values
//
// Returns:
//   - MaterialBuilderOption: a function that applies the albedo option to a material
func WithDiffuseAlbedo(albedo [4]float32) MaterialBuilderOption {
	return func(m *material) {
		m.diffuseAlbedo = albedo
	}
}

// WithFresnelR0 is an option builder that sets the reflectance at normal incidence.
//
// Parameters:
//   - r0: the RGB reflectance
//
// Returns:
//   - MaterialBuilderOption: a function that applies the Fresnel option to a material
func WithFresnelR0(r0 [3]float32) MaterialBuilderOption {
	return func(m *material) {
		m.fresnelR0 = r0
	}
}

// WithRoughness is an option builder that sets the roughness factor of the material.
//
// Parameters:
//   - roughness: the roughness factor (0.0 = smooth, 1.0 = fully rough)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the roughness option to a material
func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(m *material) {
		m.roughness = roughness
	}
}
