package taskstore

// reachable reports whether to is reachable from from by following
// dependsOn edges in index (from depends on X depends on Y ...). Used to
// reject an edge that would close a cycle: adding "id depends on
// blockerId" is illegal iff blockerId already (transitively) depends on
// id.
func reachable(index map[string]*Task, from, to string) bool {
	visited := make(map[string]bool)
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == to {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		t, ok := index[id]
		if !ok {
			return false
		}
		for _, dep := range t.DependsOn {
			if dfs(dep) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

// dependsOnResolved reports whether every dependency of t is done.
func dependsOnResolved(index map[string]*Task, t *Task) bool {
	for _, dep := range t.DependsOn {
		d, ok := index[dep]
		if !ok || d.Status != StatusDone {
			return false
		}
	}
	return true
}
