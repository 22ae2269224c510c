package queue

// Item is one pending visit.
type Item struct {
	URL       string
	Depth     int
	ParentURL string
}
