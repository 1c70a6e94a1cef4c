package game

import (
	"math"
)

type Ball struct {
    X        float64 `json:"x"`
    Y        float64 `json:"y"`
    VX       float64 `json:"vx"`
    VY       float64 `json:"vy"`
    Speed    float64 `json:"speed"`
    StartDir int     `json:"start_dir"`
}

// Paddle is anchored at InitialPos (its center) and moves vertically by YOffset.
type Paddle struct {
    YOffset    float64    `json:"y_offset"`
    InitialPos [2]float64 `json:"initial_pos"`
}

type PaddleSides struct {
    YTop   float64
    YBot   float64
    XLeft  float64
    XRight float64
}

func newPaddle(x float64) Paddle {
    return Paddle{InitialPos: [2]float64{x, BoardHeight / 2}}
}

func (p Paddle) YCenter() float64 {
    return p.InitialPos[1] + p.YOffset
}

func (p Paddle) Sides() PaddleSides {
    y := p.YCenter()
    return PaddleSides{
        YTop:   y - PaddleHeight/2,
        YBot:   y + PaddleHeight/2,
        XLeft:  p.InitialPos[0] - PaddleWidth/2,
        XRight: p.InitialPos[0] + PaddleWidth/2,
    }
}

// move shifts the paddle and keeps it fully on the board.
func (p *Paddle) move(dy float64) {
    minOffset := PaddleHeight/2 - p.InitialPos[1]
    maxOffset := BoardHeight - PaddleHeight/2 - p.InitialPos[1]
    p.YOffset = math.Max(minOffset, math.Min(maxOffset, p.YOffset+dy))
}

type Objects struct {
    Ball        Ball   `json:"ball"`
    LeftPaddle  Paddle `json:"left_paddle"`
    RightPaddle Paddle `json:"right_paddle"`
}

// bounceAngle maps the hit point on a paddle to a return angle in [-MaxBounceAngle, MaxBounceAngle].
func bounceAngle(fraction float64) float64 {
    fraction = math.Max(-1, math.Min(1, fraction))
    return fraction * MaxBounceAngle
}

func hitsVertically(b Ball, s PaddleSides) bool {
    return b.Y+BallRadius > s.YTop && b.Y-BallRadius < s.YBot
}

// moveBall advances the ball one tick. It returns the scoring side when the
// ball crossed a goal line, in which case the ball is left where it was.
func (o *Objects) moveBall() (Side, bool) {
    b := &o.Ball

    if b.VX > 0 {
        rp := o.RightPaddle.Sides()
        dx := rp.XLeft - b.X
        if dx > 0 && dx <= BallRadius && hitsVertically(*b, rp) {
            angle := bounceAngle(-(b.Y - o.RightPaddle.YCenter()) / (PaddleHeight / 2))
            b.VX = math.Cos(angle+math.Pi) * b.Speed
            b.VY = math.Sin(angle+math.Pi) * b.Speed
            b.Speed *= SpeedMultiplier
        }
    } else if b.VX < 0 {
        lp := o.LeftPaddle.Sides()
        dx := b.X - lp.XRight
        if dx > 0 && dx <= BallRadius && hitsVertically(*b, lp) {
            angle := bounceAngle((b.Y - o.LeftPaddle.YCenter()) / (PaddleHeight / 2))
            b.VX = math.Cos(angle) * b.Speed
            b.VY = math.Sin(angle) * b.Speed
            b.Speed *= SpeedMultiplier
        }
    }

    if BoardHeight-b.Y <= BallRadius || b.Y <= BallRadius {
        b.VY = -b.VY
    }

    if b.X >= BoardWidth {
        return SideLeft, true
    }
    if b.X <= 0 {
        return SideRight, true
    }

    b.X += b.VX
    b.Y += b.VY
    return "", false
}
