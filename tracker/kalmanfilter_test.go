package tracker

import (
	"gonum.org/v1/gonum/mat"
	"testing"
)

// floatsEqual compares slices of float32
func floatsEqual(a, b []float32, epsilon float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if diff := a[i] - b[i]; diff > epsilon || diff < -epsilon {
			return false
		}
	}
	return true
}

// matricesEqual compare matrices
func matricesEqual(a, b mat.Matrix, epsilon float64) bool {
	r1, c1 := a.Dims()
	r2, c2 := b.Dims()

	if r1 != r2 || c1 != c2 {
		return false
	}

	for i := 0; i < r1; i++ {
		for j := 0; j < c1; j++ {
			if diff := a.At(i, j) - b.At(i, j); diff > epsilon || diff < -epsilon {
				return false
			}
		}
	}

	return true
}

func TestKalmanFilterInitiate(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160, 1.0)

	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	measurement := Measurement{100.0, 200.0, 1.0, 50.0}

	kf.Initiate(mean, covariance, measurement)

	expectedMean := StateMean{100.0, 200.0, 1.0, 50.0, 0.0, 0.0, 0.0, 0.0}

	if !floatsEqual(mean, expectedMean, 1e-4) {
		t.Errorf("expected mean %v, got %v", expectedMean, mean)
	}

	// position variance seeded from measurement height
	if v := covariance.At(0, 0); v < 24.9 || v > 25.1 {
		t.Errorf("expected position variance near 25, got %v", v)
	}
}

// TestKalmanFilterZeroDtPredict verifies that a zero elapsed time predict
// is an identity on the state mean, so repeated frames with the same
// timestamp never drift a track
func TestKalmanFilterZeroDtPredict(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160, 0.6)

	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	kf.Initiate(mean, covariance, Measurement{100.0, 200.0, 1.0, 50.0})

	// seed a velocity so a non-identity motion matrix would move the state
	mean[4] = 5.0
	mean[5] = -3.0

	before := make(StateMean, 8)
	copy(before, mean)

	kf.Predict(mean, covariance, 0)

	if !floatsEqual(mean, before, 1e-6) {
		t.Errorf("zero dt predict moved the state: before %v after %v",
			before, mean)
	}
}

// TestKalmanFilterPredictMovesWithVelocity verifies that prediction
// advances the position by velocity scaled with elapsed time
func TestKalmanFilterPredictMovesWithVelocity(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160, 1.0)

	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	kf.Initiate(mean, covariance, Measurement{100.0, 200.0, 1.0, 50.0})

	mean[4] = 10.0
	mean[5] = 4.0

	kf.Predict(mean, covariance, 0.5)

	if mean[0] < 104.9 || mean[0] > 105.1 {
		t.Errorf("expected x near 105, got %v", mean[0])
	}

	if mean[1] < 201.9 || mean[1] > 202.1 {
		t.Errorf("expected y near 202, got %v", mean[1])
	}
}

// TestKalmanFilterVelocityDamping verifies the damping factor shrinks the
// velocity components over time
func TestKalmanFilterVelocityDamping(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160, 0.5)

	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	kf.Initiate(mean, covariance, Measurement{100.0, 200.0, 1.0, 50.0})
	mean[4] = 8.0

	kf.Predict(mean, covariance, 1.0)

	// damping of 0.5 per second halves the velocity after one second
	if mean[4] < 3.9 || mean[4] > 4.1 {
		t.Errorf("expected damped velocity near 4, got %v", mean[4])
	}
}

// TestKalmanFilterUpdateConverges verifies repeated updates pull the state
// towards the measurements
func TestKalmanFilterUpdateConverges(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160, 1.0)

	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	kf.Initiate(mean, covariance, Measurement{100.0, 200.0, 1.0, 50.0})

	target := Measurement{120.0, 210.0, 1.0, 50.0}

	for i := 0; i < 10; i++ {
		kf.Predict(mean, covariance, 1.0/30)

		if err := kf.Update(mean, covariance, target); err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}

	if diff := mean[0] - 120.0; diff > 1.0 || diff < -1.0 {
		t.Errorf("expected x to converge to 120, got %v", mean[0])
	}

	if diff := mean[1] - 210.0; diff > 1.0 || diff < -1.0 {
		t.Errorf("expected y to converge to 210, got %v", mean[1])
	}
}

// TestGatingDistanceAgeCompensation verifies the gating distance rewinds
// the predicted center by the detection age, so a late result computed on
// an old frame still matches a moving track
func TestGatingDistanceAgeCompensation(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160, 1.0)

	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	kf.Initiate(mean, covariance, Measurement{100.0, 200.0, 1.0, 50.0})

	// track moving right at 30 px/s, predicted 1 second ahead
	mean[4] = 30.0
	kf.Predict(mean, covariance, 1.0)

	// detection computed on the frame 1 second ago, at the old position
	old := Measurement{100.0, 200.0, 1.0, 50.0}

	aged, err := kf.GatingDistance(mean, covariance, old, 1.0)

	if err != nil {
		t.Fatalf("gating distance failed: %v", err)
	}

	fresh, err := kf.GatingDistance(mean, covariance, old, 0)

	if err != nil {
		t.Fatalf("gating distance failed: %v", err)
	}

	if aged >= fresh {
		t.Errorf("age compensation did not reduce distance: aged %v fresh %v",
			aged, fresh)
	}
}

// TestGatingDistanceIdentical verifies a measurement identical to the
// projected state is at distance near zero
func TestGatingDistanceIdentical(t *testing.T) {
	kf := NewKalmanFilter(1.0/20, 1.0/160, 1.0)

	mean := make(StateMean, 8)
	covariance := &StateCov{mat.NewDense(8, 8, nil)}

	kf.Initiate(mean, covariance, Measurement{100.0, 200.0, 1.0, 50.0})
	kf.Predict(mean, covariance, 1.0/30)

	dist, err := kf.GatingDistance(mean, covariance,
		Measurement{mean[0], mean[1], mean[2], mean[3]}, 0)

	if err != nil {
		t.Fatalf("gating distance failed: %v", err)
	}

	if dist > 1e-3 {
		t.Errorf("expected near zero distance, got %v", dist)
	}
}
