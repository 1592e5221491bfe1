package config

const (
	// TopicDocumentIngested carries a notification for every stored document.
	TopicDocumentIngested = "document.ingested"

	// TopicStepRetry carries post-processing steps re-queued from the failed jobs list.
	TopicStepRetry = "pipeline.step.retry"
)
