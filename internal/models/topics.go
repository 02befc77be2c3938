package models

// ClassTopics maps a topic category to its subtopics for one class.
type ClassTopics map[string][]string

// Syllabus is the whole catalog keyed by class key ("class_5").
type Syllabus map[string]ClassTopics

type SyllabusResponse struct {
	Class  int         `json:"class"`
	Topics ClassTopics `json:"topics"`
}
