package models

type AnalyzeRequest struct {
	SourceKey  string   `json:"sourceKey"`
	TargetKey  string   `json:"targetKey"`
	Similarity *float64 `json:"similarity,omitempty"` // threshold, defaults to 80
}

type BoundingBox struct {
	Top    float64 `json:"Top"`
	Left   float64 `json:"Left"`
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
}

type FaceMatch struct {
	Similarity  float64     `json:"similarity"`
	BoundingBox BoundingBox `json:"boundingBox"`
}

type AnalyzeResponse struct {
	Rekognition         bool        `json:"rekognition"`
	SimilarityThreshold float64     `json:"similarityThreshold"`
	Matches             []FaceMatch `json:"matches"`
	Unmatched           []FaceMatch `json:"unmatched"`
	StepFunctionStarted bool        `json:"stepFunctionStarted,omitempty"`
}

type FaceMatchResult struct {
	Matched    bool    `json:"matched"`
	Similarity float64 `json:"similarity"`
}
