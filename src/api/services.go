package main

import (
	"sort"
	"sync"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
)

// serviceTable is the agency table. It is replaced wholesale whenever the
// settings file changes.
type serviceTable struct {
	mu       sync.RWMutex
	services map[string]commons.Service
}

func newServiceTable(services map[string]commons.Service) *serviceTable {
	t := &serviceTable{}
	t.Set(services)
	return t
}

func (t *serviceTable) Set(services map[string]commons.Service) {
	copied := make(map[string]commons.Service, len(services))
	for k, v := range services {
		copied[k] = v
	}

	t.mu.Lock()
	t.services = copied
	t.mu.Unlock()
}

func (t *serviceTable) Get(key string) (commons.Service, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	svc, ok := t.services[key]
	return svc, ok
}

func (t *serviceTable) List() []datastructures.ServiceInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]datastructures.ServiceInfo, 0, len(t.services))
	for key, svc := range t.services {
		list = append(list, datastructures.ServiceInfo{
			Key:        key,
			Name:       svc.Name,
			PhotoSize:  svc.PhotoSize,
			PhotoMaxKB: svc.PhotoMaxKB,
			DocMaxKB:   svc.DocMaxKB,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}
