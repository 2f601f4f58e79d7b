package reago

// View is the public face of a model's record. Methods receive it as their
// self-reference, and selectors read through it. A live view reads and
// writes cells directly; a recording view (used only during trial
// execution) appends every read to the trace and suppresses all effects.
//
// View accessors panic with the package's typed errors on unknown keys so
// selectors stay free of error plumbing; Watch and Pick recover those
// panics and surface them as ordinary errors.
type View struct {
	model *Model

	// rec is non-nil while this view is recording a trial execution.
	rec *recorder
}

// recorder accumulates the keys a selector reads during trial execution.
type recorder struct {
	// keys holds cell-backed keys in first-read order, duplicates included;
	// they are deduplicated before the set is memoized.
	keys []string

	// reads counts every intercepted read, duplicates included.
	reads int
}

// noopMethod stands in for method-backed entries during trial execution, so
// calling a method while tracing cannot mutate state or run side effects.
func noopMethod(...any) any { return nil }

// Get returns the current value behind key, or the bound method for
// method-backed entries. Panics with *UnknownKeyError if key was never part
// of the record.
func (v *View) Get(key string) any {
	if v.rec != nil {
		if _, ok := v.model.methods[key]; ok {
			// Methods are never dependencies; hand back a harmless stand-in.
			v.rec.reads++
			return BoundMethod(noopMethod)
		}
		cell, err := v.model.cell(key)
		if err != nil {
			panic(err)
		}
		v.rec.reads++
		v.rec.keys = append(v.rec.keys, key)
		return cell.Value()
	}

	value, err := v.model.Get(key)
	if err != nil {
		panic(err)
	}
	return value
}

// Set writes key's cell. During trial execution writes are silent no-ops:
// tracing must never have observable effects on the real record. On a live
// view, writes notify synchronously exactly like Model.Set; unknown or
// method-backed keys panic with the corresponding typed error.
func (v *View) Set(key string, value any) {
	if v.rec != nil {
		if !v.model.Has(key) {
			panic(&UnknownKeyError{Key: key})
		}
		return
	}

	if err := v.model.Set(key, value); err != nil {
		panic(err)
	}
}

// Call invokes the method behind key. During trial execution the call is a
// no-op returning nil. Panics with *UnknownKeyError for unknown keys.
func (v *View) Call(key string, args ...any) any {
	if v.rec != nil {
		if !v.model.Has(key) {
			panic(&UnknownKeyError{Key: key})
		}
		return nil
	}

	result, err := v.model.Call(key, args...)
	if err != nil {
		panic(err)
	}
	return result
}

// Int reads key and asserts it to int. Convenience for selectors over
// numeric cells.
func (v *View) Int(key string) int {
	n, _ := v.Get(key).(int)
	return n
}

// String reads key and asserts it to string.
func (v *View) String(key string) string {
	s, _ := v.Get(key).(string)
	return s
}

// Bool reads key and asserts it to bool.
func (v *View) Bool(key string) bool {
	b, _ := v.Get(key).(bool)
	return b
}
