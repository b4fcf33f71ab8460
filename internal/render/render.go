package render

import (
	"eventboard/internal/dom"
	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

// EventDisplay is the per-record view: one heading for the title plus
// paragraphs for date, time and description.
type EventDisplay struct {
	eventHeading *dom.Element
	name         string

	date        *dom.Element
	time        *dom.Element
	description *dom.Element

	rec model.Record
}

// NewEventDisplay copies the record's title and allocates detached
// elements in doc. A missing title yields an empty heading.
func NewEventDisplay(doc *dom.Document, rec model.Record) *EventDisplay {
	d := &EventDisplay{
		eventHeading: doc.CreateElement("h4"),
		name:         rec.Title,
		date:         doc.CreateElement("p"),
		time:         doc.CreateElement("p"),
		description:  doc.CreateElement("p"),
		rec:          rec,
	}
	d.date.SetAttr("class", "event-date")
	d.time.SetAttr("class", "event-time")
	d.description.SetAttr("class", "event-description")
	return d
}

// Name is the title copied at construction.
func (d *EventDisplay) Name() string {
	return d.name
}

// Heading exposes the owned heading element.
func (d *EventDisplay) Heading() *dom.Element {
	return d.eventHeading
}

// Set writes the title into the heading and the detail strings into their
// paragraphs.
func (d *EventDisplay) Set() {
	d.eventHeading.SetText(d.name)
	d.date.SetText(d.rec.Date)
	d.time.SetText(d.rec.Time)
	d.description.SetText(d.rec.Description)
}

// Attach appends the heading to container and, when withDetails is set,
// each non-empty detail paragraph after it.
func (d *EventDisplay) Attach(container *dom.Element, withDetails bool) error {
	if err := container.AppendChild(d.eventHeading); err != nil {
		return err
	}
	if !withDetails {
		return nil
	}
	details := []struct {
		el  *dom.Element
		val string
	}{
		{d.date, d.rec.Date},
		{d.time, d.rec.Time},
		{d.description, d.rec.Description},
	}
	for _, p := range details {
		if p.val == "" {
			continue
		}
		if err := container.AppendChild(p.el); err != nil {
			return err
		}
	}
	return nil
}

// Renderer runs the render pass.
type Renderer struct {
	// ShowDetails attaches date/time/description paragraphs after each heading.
	ShowDetails bool
}

// Render builds one EventDisplay per record, in order, and appends it to
// container. It returns the number of headings appended. Rendering the same
// records twice appends two full sets.
func (r Renderer) Render(doc *dom.Document, container *dom.Element, records []model.Record) int {
	n := 0
	for i, rec := range records {
		d := NewEventDisplay(doc, rec)
		d.Set()
		if err := d.Attach(container, r.ShowDetails); err != nil {
			// Only possible if an element is reused, which NewEventDisplay never does.
			appLog.Error("render: attach failed", err, "index", i)
			continue
		}
		if rec.Title == "" {
			appLog.Debug("render: record has no title", "index", i)
		}
		n++
	}
	return n
}
