package pipeline

// Notice is a run lifecycle notification: name, record and optional fields.
type Notice struct {
	Name     string
	RecordID int
	Fields   map[string]any
}

// Publisher receives notices from a Run. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Notice)
}

// noopPublisher is the default; it drops notices.
type noopPublisher struct{}

func (noopPublisher) Publish(Notice) {}

// Notice names.
const (
	NoticeTransition       = "transition"
	NoticeDecodeFailed     = "decode_failed"
	NoticeStructuredFailed = "structured_failed"
	NoticeReseed           = "reseed"
	NoticeRoundEnd         = "round_end"
	NoticeRunDone          = "run_done"
)
