package protocol

import "time"

// Endpoint paths of the inference service.
const (
	PathUpload           = "/upload"
	PathModels           = "/models"
	PathTrainingData     = "/training-data"
	PathUploadedData     = "/uploaded-data"
	PathTrain            = "/train"
	PathTrainingStatus   = "/training-status"
	PathPredictWithMatch = "/predict-with-match"
	PathTrainingImages   = "/training-images/"
	PathSampleImages     = "/sample-images/"
	PathLabels           = "/labels"
	PathStaticTrain      = "/static/train/"
)

// Multipart form field names.
const (
	FormFieldFile  = "file"
	FormFieldLabel = "label"
)

const (
	SessionHeader = "X-Session-ID"
	UserHeader    = "X-User"
)

const (
	DefaultBaseURL        = "http://localhost:8001"
	DefaultPollInterval   = 2000 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxUploadBytes = 10 << 20
	DefaultImageCacheTTL  = time.Minute
)
