package courtapi

import "time"

// User is a synthetic queue-system user as the reservation service
// represents it.
//
// CreatedAt is kept opaque because the service emits it in a
// locale-formatted string rather than RFC 3339. ExpiresAt is stamped by
// this system when a user is provisioned; users past their expiry must
// not be reused.
type User struct {
	PhoneNumber string     `json:"phoneNumber"`
	AnimalName  string     `json:"animalName"`
	IsApproved  bool       `json:"isApproved"`
	CreatedAt   string     `json:"createdAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Court is one reservable court as reported by the reservation service.
type Court struct {
	ID            string `json:"_id"`
	Name          string `json:"name"`
	Number        int    `json:"courtNumber"`
	IsVisible     bool   `json:"isVisible"`
	IsAvailable   bool   `json:"isAvailable"`
	WaitlistCount int    `json:"waitlistCount"`
}

// RegisterResult is the response to a user registration.
type RegisterResult struct {
	Success    bool `json:"success"`
	User       User `json:"user"`
	IsExisting bool `json:"isExisting"`
}

// approveResult is the response to a user approval.
type approveResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// reserveResult is the response to a court reservation. Only the success
// flag matters to the engine; the embedded court snapshot is ignored.
type reserveResult struct {
	Success bool `json:"success"`
}

// courtsResult is the response to a court listing.
type courtsResult struct {
	Success bool    `json:"success"`
	Courts  []Court `json:"courts"`
}

// Reservation request constants. The engine always reserves the full
// court and joins the queue; the service demotes the sitting group to
// the waitlist as part of the same call.
const (
	reserveTypeFull    = "full"
	reserveOptionQueue = "queue"
)
