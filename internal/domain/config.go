package domain

// VectorConfig holds vectorization defaults shared by every index.
type VectorConfig struct {
	Model               string
	Dimensions          int
	DistanceMetric      string
	DocumentInstruction string
	QueryInstruction    string
}

// DefaultVectorConfig returns the defaults for Gemini embedding-001.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Model:               "models/embedding-001",
		Dimensions:          768,
		DistanceMetric:      "cosine",
		DocumentInstruction: "Represent this document passage for retrieval: ",
		QueryInstruction:    "Represent this question for retrieving supporting passages: ",
	}
}
