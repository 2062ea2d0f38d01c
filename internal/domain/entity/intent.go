package entity

// Intent is the structured result of parsing a free-text user message.
// Empty fields mean the message did not mention them.
type Intent struct {
	Restaurant string
	Location   string
	Window     TimeWindow
}

// Complete reports whether every field is known.
func (i Intent) Complete() bool {
	return i.Restaurant != "" && i.Location != "" && i.Window.Valid()
}

// Merge fills missing fields from other, keeping values already set.
func (i Intent) Merge(other Intent) Intent {
	if i.Restaurant == "" {
		i.Restaurant = other.Restaurant
	}
	if i.Location == "" {
		i.Location = other.Location
	}
	if !i.Window.Valid() {
		i.Window = other.Window
	}

	return i
}

// Missing lists the names of the fields that are still unknown.
func (i Intent) Missing() []string {
	var missing []string
	if i.Restaurant == "" {
		missing = append(missing, "restaurant")
	}
	if i.Location == "" {
		missing = append(missing, "location")
	}
	if !i.Window.Valid() {
		missing = append(missing, "time")
	}

	return missing
}
