package model

// Service is a catalog entry read by the scheduler for its duration. The
// catalog itself is managed elsewhere.
type Service struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Duration int    `json:"duration_min"`
	Active   bool   `json:"active"`
}

// ServiceRef is a tagged reference to a catalog service: either a bare id or
// an id with the full record attached. Whether a reference is expanded is an
// explicit state, never inferred from runtime shape.
type ServiceRef struct {
	id  int64
	svc *Service
}

// RefService builds an unexpanded reference.
func RefService(id int64) ServiceRef {
	return ServiceRef{id: id}
}

// ExpandService builds a reference carrying the full record.
func ExpandService(svc Service) ServiceRef {
	return ServiceRef{id: svc.ID, svc: &svc}
}

// ID returns the referenced service id.
func (r ServiceRef) ID() int64 {
	return r.id
}

// Expanded returns the full record when the reference was resolved.
func (r ServiceRef) Expanded() (Service, bool) {
	if r.svc == nil {
		return Service{}, false
	}
	return *r.svc, true
}
