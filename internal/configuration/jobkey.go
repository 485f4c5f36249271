package configuration

import "net/url"

// pruner is implemented by schedulers that can drop registrations the
// durable set no longer knows about.
type pruner interface {
	Prune(keep map[JobKey]struct{}) int
}

// JobKey identifies one scheduler registration.
type JobKey struct {
	ConversationID string
	ConfigName     string
}

// String is the job name "<conversation>/<name>". The conversation id is
// path-escaped so the first "/" always ends it: ("a", "b/c") is "a/b/c"
// while ("a/b", "c") is "a%2Fb/c".
func (k JobKey) String() string {
	return url.PathEscape(k.ConversationID) + "/" + k.ConfigName
}
