package common

// EntityIDSet is the data structure for a set of entity IDs
type EntityIDSet map[EntityID]struct{}

// Add adds an entity ID to EntityIDSet
func (es EntityIDSet) Add(id EntityID) {
	es[id] = struct{}{}
}

// Del removes an entity ID from EntityIDSet
func (es EntityIDSet) Del(id EntityID) {
	delete(es, id)
}

// Contains returns if the entity ID is in the set
func (es EntityIDSet) Contains(id EntityID) bool {
	_, ok := es[id]
	return ok
}
