package danmaku

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultFlowDuration = 4 * time.Second
	DefaultPinDuration  = 3 * time.Second
	DefaultLaneHeight   = 32.0
)

// Surface is the rendering backend the presenter draws on.
type Surface interface {
	// Bounds returns the size of the comment layer in pixels.
	Bounds() (width, height float64)
	// MeasureWidth returns the rendered width of the comment in pixels.
	MeasureWidth(c Comment) float64
	Mount(inst *Instance)
	Unmount(inst *Instance)
}

type PresenterOptions struct {
	// FlowDuration is the time a flow comment takes to cross container width + its own width.
	FlowDuration time.Duration
	// PinDuration is the wall-clock dwell of top and bottom comments.
	PinDuration time.Duration
	LaneHeight  float64
}

func (o PresenterOptions) withDefaults() PresenterOptions {
	if o.FlowDuration <= 0 {
		o.FlowDuration = DefaultFlowDuration
	}
	if o.PinDuration <= 0 {
		o.PinDuration = DefaultPinDuration
	}
	if o.LaneHeight <= 0 {
		o.LaneHeight = DefaultLaneHeight
	}
	return o
}

// Instance is one on-screen rendering of a comment.
type Instance struct {
	Comment        Comment
	Lane           int
	Width          float64
	ContainerWidth float64
	Y              float64
	SpawnedAt      time.Time
	Lifetime       time.Duration

	speed float64
	timer clockwork.Timer
}

// Speed is the leftward velocity in px/s; zero for pinned comments.
func (i *Instance) Speed() float64 {
	return i.speed
}

// Position returns the top-left corner of the instance at now.
func (i *Instance) Position(now time.Time) (x, y float64) {
	if i.Comment.DisplayMode.Pinned() {
		return (i.ContainerWidth - i.Width) / 2, i.Y
	}
	elapsed := now.Sub(i.SpawnedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return i.ContainerWidth - i.speed*elapsed, i.Y
}

func (i *Instance) ExpiresAt() time.Time {
	return i.SpawnedAt.Add(i.Lifetime)
}

// Presenter owns the on-screen instances and guarantees at most one live
// instance per comment id. Removal timers run on the clock, so pinned
// comments expire on wall-clock time whatever the video is doing.
type Presenter struct {
	surface Surface
	clock   clockwork.Clock
	opts    PresenterOptions

	mu        sync.Mutex
	instances map[string]*Instance
	// lane slots hold the time each lane becomes free again
	flowLanes   []time.Time
	topLanes    []time.Time
	bottomLanes []time.Time
}

func NewPresenter(surface Surface, clock clockwork.Clock, opts PresenterOptions) *Presenter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Presenter{
		surface:   surface,
		clock:     clock,
		opts:      opts.withDefaults(),
		instances: make(map[string]*Instance),
	}
}

// Present shows c unless an instance for its id is already on screen, in which
// case the existing instance is returned with created=false.
func (p *Presenter) Present(c Comment) (inst *Instance, created bool) {
	width, height := p.surface.Bounds()
	textWidth := p.surface.MeasureWidth(c)

	p.mu.Lock()
	if existing, ok := p.instances[c.ID]; ok {
		p.mu.Unlock()
		return existing, false
	}

	now := p.clock.Now()
	inst = &Instance{
		Comment:        c,
		Width:          textWidth,
		ContainerWidth: width,
		SpawnedAt:      now,
	}

	laneCount := p.laneCount(height)
	switch c.DisplayMode {
	case ModeTop:
		inst.Lifetime = p.opts.PinDuration
		p.topLanes = resizeLanes(p.topLanes, laneCount)
		inst.Lane = pickLane(p.topLanes, now)
		p.topLanes[inst.Lane] = now.Add(inst.Lifetime)
		inst.Y = float64(inst.Lane) * p.opts.LaneHeight
	case ModeBottom:
		inst.Lifetime = p.opts.PinDuration
		p.bottomLanes = resizeLanes(p.bottomLanes, laneCount)
		inst.Lane = pickLane(p.bottomLanes, now)
		p.bottomLanes[inst.Lane] = now.Add(inst.Lifetime)
		inst.Y = math.Max(0, height-float64(inst.Lane+1)*p.opts.LaneHeight)
	default:
		inst.Lifetime = p.opts.FlowDuration
		if span := width + textWidth; span > 0 {
			inst.speed = span / p.opts.FlowDuration.Seconds()
		}
		p.flowLanes = resizeLanes(p.flowLanes, laneCount)
		inst.Lane = pickLane(p.flowLanes, now)
		// the lane frees up once the tail has cleared the right edge
		entered := time.Duration(0)
		if inst.speed > 0 {
			entered = time.Duration(textWidth / inst.speed * float64(time.Second))
		}
		p.flowLanes[inst.Lane] = now.Add(entered)
		inst.Y = float64(inst.Lane) * p.opts.LaneHeight
	}

	p.instances[c.ID] = inst
	inst.timer = p.clock.AfterFunc(inst.Lifetime, func() {
		p.remove(inst)
	})
	p.mu.Unlock()

	p.surface.Mount(inst)
	return inst, true
}

func (p *Presenter) remove(inst *Instance) {
	p.mu.Lock()
	current, ok := p.instances[inst.Comment.ID]
	if !ok || current != inst {
		p.mu.Unlock()
		return
	}
	delete(p.instances, inst.Comment.ID)
	p.mu.Unlock()

	p.surface.Unmount(inst)
}

// ClearAll removes every instance and stops its timer. Used when the player
// view closes so nothing leaks into the next video.
func (p *Presenter) ClearAll() {
	p.mu.Lock()
	removed := make([]*Instance, 0, len(p.instances))
	for _, inst := range p.instances {
		inst.timer.Stop()
		removed = append(removed, inst)
	}
	p.instances = make(map[string]*Instance)
	p.flowLanes = nil
	p.topLanes = nil
	p.bottomLanes = nil
	p.mu.Unlock()

	for _, inst := range removed {
		p.surface.Unmount(inst)
	}
}

// Active returns the instance currently shown for id, if any.
func (p *Presenter) Active(id string) (*Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.instances[id]
	return inst, ok
}

func (p *Presenter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances)
}

func (p *Presenter) laneCount(height float64) int {
	n := int(height / p.opts.LaneHeight)
	if n < 1 {
		return 1
	}
	return n
}

func resizeLanes(lanes []time.Time, n int) []time.Time {
	if len(lanes) == n {
		return lanes
	}
	resized := make([]time.Time, n)
	copy(resized, lanes)
	return resized
}

// pickLane returns the first lane already free at now, or else the lane that
// frees up soonest.
func pickLane(lanes []time.Time, now time.Time) int {
	best := 0
	for i, freeAt := range lanes {
		if !freeAt.After(now) {
			return i
		}
		if freeAt.Before(lanes[best]) {
			best = i
		}
	}
	return best
}
