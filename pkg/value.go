package udrone

// Data is the recursive, self-describing payload carried by a Message's
// "data" field. The wire format is JSON, whose native value set (null,
// bool, float64, string, []any, map[string]any) is exactly the tagged union
// the protocol needs, so Data is a thin map wrapper rather than a bespoke
// variant type.
//
// The core only ever looks at the six fields below; everything else a
// drone or caller puts in Data passes through untouched.
type Data map[string]any

// Code returns data.code. A missing data field, a missing code key, or a
// non-numeric code is reported via the ok return rather than defaulting to
// success, matching the Python original's plain dict lookup (KeyError on a
// missing field falls through to the malformed/EPROTO path, not success).
func (d Data) Code() (int, bool) {
	if d == nil {
		return 0, false
	}
	v, present := d["code"]
	if !present {
		return 0, false
	}
	return toInt(v)
}

// Errstr returns data.errstr, if present.
func (d Data) Errstr() (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d["errstr"].(string)
	return v, ok
}

// Board returns data.board, used to filter !whois requests.
func (d Data) Board() (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d["board"].(string)
	return v, ok
}

// Group returns data.group, carried by !assign requests.
func (d Data) Group() (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d["group"].(string)
	return v, ok
}

// Seq returns data.seq, carried by !assign requests.
func (d Data) Seq() (int, bool) {
	if d == nil {
		return 0, false
	}
	v, present := d["seq"]
	if !present {
		return 0, false
	}
	return toInt(v)
}

// How returns data.how, carried by !reset requests ("system" => reboot).
func (d Data) How() (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d["how"].(string)
	return v, ok
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
