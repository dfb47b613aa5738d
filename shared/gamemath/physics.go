package gamemath

// ApplyFriction reduces speed toward zero by friction amount.
func ApplyFriction(speed, friction float64) float64 {
	if speed > friction {
		return speed - friction
	}
	if speed < -friction {
		return speed + friction
	}
	return 0
}

// ClampSpeed clamps a value to [-max, max].
func ClampSpeed(speed, max float64) float64 {
	if speed > max {
		return max
	}
	if speed < -max {
		return -max
	}
	return speed
}

// Clamp clamps v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MuzzleVelocity returns the launch velocity for a projectile fired along aim.
func MuzzleVelocity(aim Vec3, speed float64) Vec3 {
	return aim.Normalize().Scale(speed)
}

// FireInterval returns the minimum milliseconds between two shots of a weapon
// firing rpm rounds per minute.
func FireInterval(rpm float64) float64 {
	if rpm <= 0 {
		return 0
	}
	return 60000 / rpm
}
