package triage

// Route maps a category to its department. It never fails: a category with no
// table entry, or whose department is not in the current department set,
// routes to the default department.
func (e *Engine) Route(c Category) string {
	dept, ok := e.deptFor[c]
	if !ok {
		return e.defaultDpt
	}
	if set := e.departments.Load(); set != nil && !(*set)[dept] {
		return e.defaultDpt
	}
	return dept
}
