package session

// Keys holding send-flow progress. Every write goes through the functions
// below so that ClearFlow always knows the full set.
const (
	KeyRecipient    = "recipient"
	KeyPlaceholders = "placeholders"
	KeySenderID     = "sender_id"
	KeySendStep     = "send_step"
	KeyUploadID     = "upload_id"
	keyTemplateID   = "send_template_id"
)

// FlowKeys are removed together when a send finishes or is abandoned.
var FlowKeys = []string{KeyRecipient, KeyPlaceholders, KeySenderID, KeySendStep, KeyUploadID, keyTemplateID}

// SendFlowState is the partial answer set of a one-off or bulk send.
type SendFlowState struct {
	TemplateID   string
	Recipient    string
	Placeholders map[string]string
	SenderID     string
	UploadID     string
	Step         int
}

// Flow reads the send state. Missing values read as zero.
func Flow(s *Session) SendFlowState {
	var st SendFlowState
	s.get(keyTemplateID, &st.TemplateID)
	s.get(KeyRecipient, &st.Recipient)
	s.get(KeySenderID, &st.SenderID)
	s.get(KeyUploadID, &st.UploadID)
	s.get(KeySendStep, &st.Step)
	s.get(KeyPlaceholders, &st.Placeholders)
	if st.Placeholders == nil {
		st.Placeholders = make(map[string]string)
	}
	return st
}

// StartFlow binds the flow to a template, discarding answers given for any
// other template.
func StartFlow(s *Session, templateID string) {
	var current string
	if s.get(keyTemplateID, &current) && current == templateID {
		return
	}
	ClearFlow(s)
	s.set(keyTemplateID, templateID)
}

func SetRecipient(s *Session, recipient string) {
	s.set(KeyRecipient, recipient)
}

func SetPlaceholder(s *Session, name, value string) {
	st := Flow(s)
	st.Placeholders[name] = value
	s.set(KeyPlaceholders, st.Placeholders)
}

func SetSenderID(s *Session, id string) {
	if id == "" {
		delete(s.Values, KeySenderID)
		return
	}
	s.set(KeySenderID, id)
}

func SetUploadID(s *Session, id string) {
	s.set(KeyUploadID, id)
}

func SetStep(s *Session, step int) {
	s.set(KeySendStep, step)
}

// ClearFlow removes every send-flow key.
func ClearFlow(s *Session) {
	for _, k := range FlowKeys {
		delete(s.Values, k)
	}
}
