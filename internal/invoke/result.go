package invoke

// Kind classifies the outcome of one provider attempt.
type Kind string

const (
	KindSuccess       Kind = "success"
	KindTimeout       Kind = "timeout"
	KindProcessError  Kind = "process_error"
	KindEmptyResponse Kind = "empty_response"
	KindCanceled      Kind = "canceled"
)

// Result is the classified outcome of one provider attempt. Exactly one
// Result exists per attempt.
type Result struct {
	OK     bool
	Text   string // trimmed provider output, set on success
	Kind   Kind
	Detail string // failure message, set on failure
}

func success(text string) Result {
	return Result{OK: true, Text: text, Kind: KindSuccess}
}

func failure(kind Kind, detail string) Result {
	return Result{Kind: kind, Detail: detail}
}
