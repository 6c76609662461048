package wire

// Name is the RINA four-part structured application/IPCP name: process
// name, process instance, entity name, entity instance. Most call sites
// only ever set Process; the remaining components default to "".
type Name struct {
	Process          string
	ProcessInstance  string
	Entity           string
	EntityInstance   string
}

// NewName builds a Name from just a process name, the common case in the
// scenarios this system drives (application names like "cli"/"srv").
func NewName(process string) Name { return Name{Process: process} }

// Equal reports whether two names refer to the same four-tuple.
func (n Name) Equal(o Name) bool {
	return n.Process == o.Process &&
		n.ProcessInstance == o.ProcessInstance &&
		n.Entity == o.Entity &&
		n.EntityInstance == o.EntityInstance
}

// String renders the name in the conventional slash-separated form.
func (n Name) String() string {
	return n.Process + "/" + n.ProcessInstance + "/" + n.Entity + "/" + n.EntityInstance
}

func (w *writer) putName(n Name) {
	w.putString(n.Process)
	w.putString(n.ProcessInstance)
	w.putString(n.Entity)
	w.putString(n.EntityInstance)
}

func (r *reader) getName() (Name, error) {
	p, err := r.getString()
	if err != nil {
		return Name{}, err
	}
	pi, err := r.getString()
	if err != nil {
		return Name{}, err
	}
	e, err := r.getString()
	if err != nil {
		return Name{}, err
	}
	ei, err := r.getString()
	if err != nil {
		return Name{}, err
	}
	return Name{Process: p, ProcessInstance: pi, Entity: e, EntityInstance: ei}, nil
}
