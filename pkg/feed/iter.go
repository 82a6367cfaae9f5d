package feed

// ActivityIter is a lazy iterator over a student's activity records within
// a window. It pulls pages from the feed on demand and is one-shot: once
// exhausted or failed it cannot be rewound, re-invoke Client.Activities for
// a fresh fetch.
type ActivityIter struct {
	client    *Client
	sess      *Session
	studentID string
	window    Window

	page    int
	buf     []*Activity
	idx     int
	current *Activity
	done    bool
	err     error
}

// Next advances to the next record, fetching the next page when the current
// one is drained. It returns false when the sequence is exhausted or an
// error occurred; check Err afterwards.
func (it *ActivityIter) Next() bool {
	if it.err != nil {
		return false
	}

	for it.idx >= len(it.buf) {
		if it.done {
			return false
		}
		page, err := it.client.FetchActivitiesPage(it.sess, it.studentID, it.window, it.page)
		if err != nil {
			it.err = err
			return false
		}

		buf := make([]*Activity, 0, len(page.Activities))
		for _, raw := range page.Activities {
			rec, err := ParseActivity(raw)
			if err != nil {
				it.err = err
				return false
			}
			buf = append(buf, rec)
		}

		if len(page.Activities) < it.client.pageSize {
			it.done = true
		}
		it.buf = buf
		it.idx = 0
		it.page++
	}

	it.current = it.buf[it.idx]
	it.idx++
	return true
}

// Record returns the record produced by the last successful Next
func (it *ActivityIter) Record() *Activity {
	return it.current
}

// Err returns the error that terminated iteration, if any
func (it *ActivityIter) Err() error {
	return it.err
}
