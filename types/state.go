package types

// State is the flat, template-ready context object produced by state
// composition for one conversational turn. Sections that would be empty
// are empty strings, never absent, so prompt templates can reference any
// placeholder unconditionally.
type State struct {
	AgentID    UUID   `json:"agentId"`
	AgentName  string `json:"agentName"`
	RoomID     UUID   `json:"roomId"`
	SenderID   UUID   `json:"senderId"`
	SenderName string `json:"senderName"`

	Bio               string `json:"bio"`
	Lore              string `json:"lore"`
	System            string `json:"system"`
	Topics            string `json:"topics"`
	Adjective         string `json:"adjective"`
	Knowledge         string `json:"knowledge"`
	MessageDirections string `json:"messageDirections"`
	PostDirections    string `json:"postDirections"`

	Actors      string  `json:"actors"`
	ActorsData  []Actor `json:"actorsData,omitempty"`
	Goals       string  `json:"goals"`
	GoalsData   []Goal  `json:"goalsData,omitempty"`
	Attachments string  `json:"attachments"`

	RecentMessages     string   `json:"recentMessages"`
	RecentPosts        string   `json:"recentPosts"`
	RecentMessagesData []Memory `json:"recentMessagesData,omitempty"`

	RecentMessageInteractions string `json:"recentMessageInteractions"`
	RecentPostInteractions    string `json:"recentPostInteractions"`

	CharacterMessageExamples string `json:"characterMessageExamples"`
	CharacterPostExamples    string `json:"characterPostExamples"`

	Actions           string `json:"actions"`
	ActionNames       string `json:"actionNames"`
	ActionExamples    string `json:"actionExamples"`
	Evaluators        string `json:"evaluators"`
	EvaluatorNames    string `json:"evaluatorNames"`
	EvaluatorExamples string `json:"evaluatorExamples"`
	Providers         string `json:"providers"`

	// Extra holds caller-supplied fields layered on top of the computed
	// ones. On placeholder collision Extra always wins.
	Extra map[string]any `json:"-"`
}

// Placeholders flattens the state into the key set consumed by prompt
// templates. Extra fields are merged last.
func (s *State) Placeholders() map[string]any {
	m := map[string]any{
		"agentId":                   s.AgentID.String(),
		"agentName":                 s.AgentName,
		"roomId":                    s.RoomID.String(),
		"senderName":                s.SenderName,
		"bio":                       s.Bio,
		"lore":                      s.Lore,
		"system":                    s.System,
		"topics":                    s.Topics,
		"adjective":                 s.Adjective,
		"knowledge":                 s.Knowledge,
		"messageDirections":         s.MessageDirections,
		"postDirections":            s.PostDirections,
		"actors":                    s.Actors,
		"goals":                     s.Goals,
		"attachments":               s.Attachments,
		"recentMessages":            s.RecentMessages,
		"recentPosts":               s.RecentPosts,
		"recentMessageInteractions": s.RecentMessageInteractions,
		"recentPostInteractions":    s.RecentPostInteractions,
		"characterMessageExamples":  s.CharacterMessageExamples,
		"characterPostExamples":     s.CharacterPostExamples,
		"actions":                   s.Actions,
		"actionNames":               s.ActionNames,
		"actionExamples":            s.ActionExamples,
		"evaluators":                s.Evaluators,
		"evaluatorNames":            s.EvaluatorNames,
		"evaluatorExamples":         s.EvaluatorExamples,
		"providers":                 s.Providers,
	}
	for k, v := range s.Extra {
		m[k] = v
	}
	return m
}
