package domain

type SubscriptionName string

// Subscription is a remote document of share links.
type Subscription struct {
	Name SubscriptionName `json:"name" validate:"required,alphanum_dash"`
	URL  string           `json:"url" validate:"required,url"`
}

// TagPrefix marks outbounds imported from this subscription so a refresh can replace them.
func (s Subscription) TagPrefix() string {
	return string(s.Name) + "/"
}
