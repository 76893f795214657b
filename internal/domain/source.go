package domain

// Source identifies which ingestion path delivered a transaction.
type Source string

const (
	SourceWebhook      Source = "webhook"
	SourceSubscription Source = "subscription"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s Source) IsValid() bool {
	return s == SourceWebhook || s == SourceSubscription
}
