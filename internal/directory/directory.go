// CamGrid - Live and Recorded Camera Grid Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/camgrid

// Package directory provides read-only camera, device and event lookups.
// The engine never persists these; they come from configuration or an
// external recorder index.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/camgrid/internal/models"
	"github.com/tomtom215/camgrid/internal/validation"
)

// Directory resolves cameras and the devices that host them.
type Directory interface {
	Camera(id string) (*models.Camera, error)
	Device(id string) (*models.Device, error)
}

// EventSource supplies recorded events for a camera within a window.
type EventSource interface {
	Events(ctx context.Context, cameraID string, start, end time.Time) ([]models.Event, error)
}

// SegmentSource supplies the recorded stretches of a camera within a
// window. EventSources may implement it.
type SegmentSource interface {
	Segments(ctx context.Context, cameraID string, start, end time.Time) ([]models.Window, error)
}

// Memory is a Directory held in memory.
type Memory struct {
	mu      sync.RWMutex
	devices map[string]models.Device
	cameras map[string]models.Camera
	order   []string
}

// NewMemory validates devices and cameras and indexes them. Every camera
// must reference a known device.
func NewMemory(devices []models.Device, cameras []models.Camera) (*Memory, error) {
	m := &Memory{
		devices: make(map[string]models.Device, len(devices)),
		cameras: make(map[string]models.Camera, len(cameras)),
	}
	for i := range devices {
		if err := validation.ValidateStruct(&devices[i]); err != nil {
			return nil, fmt.Errorf("device %d (%s): %w", i, devices[i].ID, err)
		}
		if _, dup := m.devices[devices[i].ID]; dup {
			return nil, fmt.Errorf("device %q defined twice", devices[i].ID)
		}
		m.devices[devices[i].ID] = devices[i]
	}
	for i := range cameras {
		if err := m.Add(cameras[i]); err != nil {
			return nil, fmt.Errorf("camera %d: %w", i, err)
		}
	}
	return m, nil
}

// Add registers a camera after validating it.
func (m *Memory) Add(cam models.Camera) error {
	if err := validation.ValidateStruct(&cam); err != nil {
		return fmt.Errorf("camera %s: %w", cam.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[cam.DeviceID]; !ok {
		return fmt.Errorf("camera %s: %w: %s", cam.ID, models.ErrDeviceNotFound, cam.DeviceID)
	}
	if _, dup := m.cameras[cam.ID]; dup {
		return fmt.Errorf("camera %q defined twice", cam.ID)
	}
	m.cameras[cam.ID] = cam
	m.order = append(m.order, cam.ID)
	return nil
}

// Camera returns a copy of the camera with id.
func (m *Memory) Camera(id string) (*models.Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cam, ok := m.cameras[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrCameraNotFound, id)
	}
	return &cam, nil
}

// Device returns a copy of the device with id.
func (m *Memory) Device(id string) (*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dev, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDeviceNotFound, id)
	}
	return &dev, nil
}

// Cameras returns every camera in registration order.
func (m *Memory) Cameras() []models.Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Camera, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.cameras[id])
	}
	return out
}

// Resolve looks up a camera and its device in one call.
func Resolve(d Directory, cameraID string) (*models.Camera, *models.Device, error) {
	cam, err := d.Camera(cameraID)
	if err != nil {
		return nil, nil, err
	}
	dev, err := d.Device(cam.DeviceID)
	if err != nil {
		return nil, nil, fmt.Errorf("camera %s: %w", cameraID, err)
	}
	return cam, dev, nil
}

// StaticEvents is an EventSource and SegmentSource over fixed lists.
type StaticEvents struct {
	mu       sync.RWMutex
	events   map[string][]models.Event
	segments map[string][]models.Window
}

// NewStaticEvents indexes events by camera.
func NewStaticEvents(events []models.Event) *StaticEvents {
	s := &StaticEvents{
		events:   make(map[string][]models.Event),
		segments: make(map[string][]models.Window),
	}
	for _, ev := range events {
		s.Add(ev)
	}
	return s
}

// Add records an event, keeping each camera's list sorted by start.
func (s *StaticEvents) Add(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.events[ev.CameraID]
	i := sort.Search(len(list), func(i int) bool { return list[i].Start.After(ev.Start) })
	list = append(list, models.Event{})
	copy(list[i+1:], list[i:])
	list[i] = ev
	s.events[ev.CameraID] = list
}

// Events returns the camera's events overlapping [start, end].
func (s *StaticEvents) Events(ctx context.Context, cameraID string, start, end time.Time) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Event
	for _, ev := range s.events[cameraID] {
		evEnd := ev.End
		if evEnd.IsZero() {
			evEnd = ev.Start
		}
		if evEnd.Before(start) || ev.Start.After(end) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// AddSegment records a recorded stretch, keeping each camera's list sorted
// by start.
func (s *StaticEvents) AddSegment(seg models.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.segments[seg.CameraID], seg.Window())
	sort.SliceStable(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
	s.segments[seg.CameraID] = list
}

// Segments returns the camera's segments overlapping [start, end].
func (s *StaticEvents) Segments(ctx context.Context, cameraID string, start, end time.Time) ([]models.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Window
	for _, seg := range s.segments[cameraID] {
		if seg.End.Before(start) || seg.Start.After(end) {
			continue
		}
		out = append(out, seg)
	}
	return out, nil
}
