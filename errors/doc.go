// Package errors provides the error classification used across netpublish.
//
// Every error belongs to one of three classes:
//
//   - Transient: a back end is temporarily unavailable or a queue is full. The next
//     pipeline tick may succeed.
//   - Invalid: bad input or a malformed publishable definition. Retrying does not
//     help.
//   - Fatal: a programming error, such as publishing before a name was set.
//
// Errors are wrapped with component context in the form
// "component.method: action failed: %w":
//
//	if err := store.Put(ctx, key, data); err != nil {
//	    return errors.WrapTransient(err, "NATSStore", "Put", "write key")
//	}
//
// Sentinels are matched with errors.Is through any number of wraps:
//
//	_, err := publish.Discover[Vector2D]()
//	if errors.Is(err, errors.ErrDuplicateWeight) { ... }
//
// IsDefinitionError groups the sentinels raised while validating a publishable
// type's value providers. Those are always reported at construction time.
package errors
