// Package interfaces centralizes the contracts the broker's core
// components use to talk to each other, so the subscription manager
// can be tested against fakes without pulling in the registry or the
// concrete topic controller.
package interfaces

import "zaichik/internals/topic"

// TopicController is the subset of *topic.Controller the subscription
// manager depends on.
type TopicController interface {
	Name() string
	Config() topic.Config
	Publish(key *string, payload []byte) topic.Message
	Subscribe() *topic.Subscription
	Unsubscribe(sub *topic.Subscription)
}

// Registry is the subset of *registry.Registry the subscription
// manager and netio accept loop depend on.
type Registry interface {
	// Create registers a brand-new topic with the given config. ok is
	// false if the name was already registered, in which case the
	// caller must reply TopicAlreadyExists and controller is the
	// existing (unmodified) controller.
	Create(name string, cfg topic.Config) (controller TopicController, ok bool)

	// GetOrCreate returns the named topic's controller, creating it
	// with cfg if it doesn't exist yet. created reports whether this
	// call did the creating.
	GetOrCreate(name string, cfg topic.Config) (controller TopicController, created bool)

	// Get looks up an existing topic without creating it.
	Get(name string) (controller TopicController, ok bool)
}
