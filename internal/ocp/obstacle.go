package ocp

// ObstacleKind tags the geometry of an obstacle descriptor.
type ObstacleKind int

const (
	// FloorObstacle bounds the world-frame height of the monitored point.
	FloorObstacle ObstacleKind = iota
	// BallObstacle bounds the squared distance from the monitored point
	// to a sphere center.
	BallObstacle
)

func (k ObstacleKind) String() string {
	switch k {
	case FloorObstacle:
		return "floor"
	case BallObstacle:
		return "ball"
	default:
		return "unknown"
	}
}

// Obstacle describes one geometric keep-out constraint. Immutable; supplied
// at controller construction.
type Obstacle struct {
	Kind     ObstacleKind
	Lower    float64
	Upper    float64
	Position [3]float64 // ball center; unused for floors
}
