package generation

// Slot keys of the multi-variant dialect, in assignment order.
// The plain-text and single-object dialects populate SingleSlotKey.
var SlotKeys = []string{"variant1", "variant2", "variant3"}

// SingleSlotKey is the slot used by the single-variant dialects.
const SingleSlotKey = "variant1"

// Slot is one normalized text/image candidate.
type Slot struct {
	Text  *string `json:"text"`
	Image *string `json:"image"`
}

// IsEmpty reports whether the slot carries neither text nor image.
func (s Slot) IsEmpty() bool {
	return s.Text == nil && s.Image == nil
}

// NormalizedContent maps slot keys to their content. A missing key means no content.
type NormalizedContent map[string]Slot

// Keys returns the present slot keys in slot order.
func (c NormalizedContent) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, k := range SlotKeys {
		if _, ok := c[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

const (
	fieldPostText  = "generatedPostText"
	fieldPostImage = "generatedPostImage"
)

// Normalize converts the upstream generatedContent payload into NormalizedContent.
//
// Dialects are detected by shape, first match wins:
//  1. nil: empty content
//  2. string: single slot with text only (empty string is empty content)
//  3. non-empty object whose keys are all variantN slot keys: one slot per key,
//     each value read as a single-object payload or a bare string
//  4. object with generatedPostText and/or generatedPostImage: single slot
//  5. anything else: empty content
//
// New dialects must be added here as an explicit rule. Normalize never fails.
func Normalize(raw any) NormalizedContent {
	out := NormalizedContent{}

	switch v := raw.(type) {
	case nil:
		return out
	case string:
		if v == "" {
			return out
		}
		out[SingleSlotKey] = Slot{Text: strPtr(v)}
		return out
	case map[string]any:
		if isMultiVariant(v) {
			for _, key := range SlotKeys {
				value, ok := v[key]
				if !ok {
					continue
				}
				if slot, ok := slotFromValue(value); ok {
					out[key] = slot
				}
			}
			return out
		}
		if hasSingleObjectFields(v) {
			out[SingleSlotKey] = slotFromObject(v)
		}
		return out
	default:
		return out
	}
}

func isMultiVariant(obj map[string]any) bool {
	if len(obj) == 0 {
		return false
	}
	for key := range obj {
		if !isSlotKey(key) {
			return false
		}
	}
	return true
}

func isSlotKey(key string) bool {
	for _, k := range SlotKeys {
		if k == key {
			return true
		}
	}
	return false
}

func hasSingleObjectFields(obj map[string]any) bool {
	_, hasText := obj[fieldPostText]
	_, hasImage := obj[fieldPostImage]
	return hasText || hasImage
}

func slotFromValue(value any) (Slot, bool) {
	switch v := value.(type) {
	case map[string]any:
		return slotFromObject(v), true
	case string:
		return Slot{Text: strPtr(v)}, true
	default:
		return Slot{}, false
	}
}

// slotFromObject reads the single-object fields; missing or non-string values become nil
func slotFromObject(obj map[string]any) Slot {
	return Slot{
		Text:  stringField(obj, fieldPostText),
		Image: stringField(obj, fieldPostImage),
	}
}

func stringField(obj map[string]any, key string) *string {
	s, ok := obj[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func strPtr(s string) *string {
	return &s
}
