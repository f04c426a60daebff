package metrics

/*
Labels and so on for metrics used in the pipeline.
*/

const (
	LabelSuccess = "success"
	LabelUnit    = "unit"
	LabelStatus  = "status"
	LabelEvent   = "event"
)
