package hh

// VacancyItem is one active vacancy as returned by the employer listing.
type VacancyItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Area struct {
		Name string `json:"name"`
	} `json:"area"`
}

// NegotiationItem is one response row from a folder listing. VacancyID is
// annotated locally from the request that fetched it.
type NegotiationItem struct {
	ID          string `json:"id"`
	CreatedAt   string `json:"created_at"`
	HasUpdates  bool   `json:"has_updates"`
	MessagesURL string `json:"messages_url"`
	Resume      struct {
		ID         string `json:"id"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		MiddleName string `json:"middle_name"`
	} `json:"resume"`
	VacancyID string `json:"-"`
}

// FullName assembles the candidate's name from the resume fields.
func (n NegotiationItem) FullName() string {
	name := n.Resume.LastName
	if n.Resume.FirstName != "" {
		if name != "" {
			name += " "
		}
		name += n.Resume.FirstName
	}
	if n.Resume.MiddleName != "" {
		if name != "" {
			name += " "
		}
		name += n.Resume.MiddleName
	}
	return name
}

// Message is one thread message.
type Message struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Author struct {
		ParticipantType string `json:"participant_type"`
	} `json:"author"`
	CreatedAt string `json:"created_at"`
}

// FromApplicant reports whether the message was written by the candidate.
func (m Message) FromApplicant() bool {
	return m.Author.ParticipantType == "applicant"
}

type meResponse struct {
	Employer struct {
		ID string `json:"id"`
	} `json:"employer"`
}

type vacanciesPage struct {
	Items []VacancyItem `json:"items"`
	Pages int           `json:"pages"`
}

type negotiationsPage struct {
	Items []NegotiationItem `json:"items"`
	Pages int               `json:"pages"`
}

type messagesPage struct {
	Items []Message `json:"items"`
	Pages int       `json:"pages"`
}

type negotiationDetails struct {
	ID            string `json:"id"`
	EmployerState struct {
		ID string `json:"id"`
	} `json:"employer_state"`
}

// Folder identifiers in the job board's candidate pipeline.
const (
	FolderResponse   = "response"
	FolderConsider   = "consider"
	FolderInterview  = "interview"
	FolderAssessment = "assessment"
)
