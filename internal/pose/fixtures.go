package pose

// ClimberPose returns a preset frame of a climber facing the wall with both
// arms raised. Coordinates are normalized camera space, every landmark is
// fully visible.
func ClimberPose() Frame {
	lm := make([]Landmark, NumLandmarks)

	set := func(i int, x, y float64) {
		lm[i] = Landmark{X: x, Y: y, Z: 0.0, Visibility: 0.95}
	}

	// Head
	set(Nose, 0.50, 0.30)
	set(LeftEyeInner, 0.49, 0.29)
	set(LeftEye, 0.48, 0.29)
	set(LeftEyeOuter, 0.47, 0.29)
	set(RightEyeInner, 0.51, 0.29)
	set(RightEye, 0.52, 0.29)
	set(RightEyeOuter, 0.53, 0.29)
	set(LeftEar, 0.46, 0.30)
	set(RightEar, 0.54, 0.30)
	set(MouthLeft, 0.49, 0.32)
	set(MouthRight, 0.51, 0.32)

	// Arms reaching up and out
	set(LeftShoulder, 0.44, 0.38)
	set(RightShoulder, 0.56, 0.38)
	set(LeftElbow, 0.38, 0.28)
	set(RightElbow, 0.62, 0.28)
	set(LeftWrist, 0.34, 0.18)
	set(RightWrist, 0.66, 0.18)
	set(LeftPinky, 0.32, 0.16)
	set(RightPinky, 0.68, 0.16)
	set(LeftIndex, 0.34, 0.14)
	set(RightIndex, 0.66, 0.14)
	set(LeftThumb, 0.35, 0.16)
	set(RightThumb, 0.65, 0.16)

	// Legs on footholds
	set(LeftHip, 0.46, 0.60)
	set(RightHip, 0.54, 0.60)
	set(LeftKnee, 0.42, 0.72)
	set(RightKnee, 0.58, 0.72)
	set(LeftAnkle, 0.41, 0.85)
	set(RightAnkle, 0.59, 0.85)
	set(LeftHeel, 0.40, 0.86)
	set(RightHeel, 0.60, 0.86)
	set(LeftFootIndex, 0.43, 0.87)
	set(RightFootIndex, 0.57, 0.87)

	return Frame{Landmarks: lm}
}

// HandsAt returns ClimberPose with every palm landmark of a hand placed on
// the given point. A nil point hides that hand by dropping its visibility
// below VisibilityThreshold.
func HandsAt(left, right *Point2D) Frame {
	f := ClimberPose()
	place := func(h Hand, p *Point2D) {
		idx := Hands[h]
		if p == nil {
			for _, i := range idx.Palm() {
				f.Landmarks[i].Visibility = 0.1
			}
			return
		}
		for _, i := range idx.Palm() {
			f.Landmarks[i] = Landmark{X: p.X, Y: p.Y, Visibility: 0.9}
		}
		// Elbow directly below the hand
		f.Landmarks[idx.Elbow] = Landmark{X: p.X, Y: p.Y + 40, Visibility: 0.9}
	}
	place(Left, left)
	place(Right, right)
	return f
}
