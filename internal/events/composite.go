package events

import (
	"context"
	"fmt"
	"strings"
)

// CompositePublisher implements the Publisher interface and delegates
// publishing to multiple Publishers.
type CompositePublisher struct {
	publishers []Publisher
}

// NewCompositePublisher creates a new CompositePublisher.
// It returns the concrete type so AddPublisher can be called directly.
func NewCompositePublisher(publishers ...Publisher) *CompositePublisher {
	return &CompositePublisher{publishers: publishers}
}

// AddPublisher adds a publisher to the composite's list.
func (cp *CompositePublisher) AddPublisher(publisher Publisher) {
	if publisher != nil {
		cp.publishers = append(cp.publishers, publisher)
	}
}

// Publish iterates through all registered publishers and calls their Publish
// method. It collects all errors encountered and returns them as a single
// error; one backend failing does not stop the others.
func (cp *CompositePublisher) Publish(ctx context.Context, event Event) error {
	if len(cp.publishers) == 0 {
		return fmt.Errorf("no publishers configured in CompositePublisher")
	}

	var allErrors []string
	for _, publisher := range cp.publishers {
		if err := publisher.Publish(ctx, event); err != nil {
			allErrors = append(allErrors, err.Error())
		}
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("composite publish failed: [ %s ]", strings.Join(allErrors, "; "))
	}
	return nil
}
