package model

// Record is one event as served by the events resource.
//
// "title" is the only key read for the display title. Date and Time are
// carried verbatim as the server formats them.
type Record struct {
	Title       string `json:"title"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Description string `json:"description,omitempty"`
}

// Payload is the envelope returned by GET /events.
type Payload struct {
	Data []Record `json:"data"`
}
