package tracker

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Measurement represents a 1x4 matrix using a slice of float32 holding an
// observed bounding box in xyah form (center x, center y, aspect ratio,
// height)
type Measurement []float32

// StateMean represents a 1x8 matrix using a slice of float32
type StateMean []float32

// StateCov represents an 8x8 matrix
type StateCov struct {
	*mat.Dense
}

// StateHMean represents a 1x4 matrix using a slice of float32
type StateHMean []float32

// StateHCov represents a 4x4 matrix
type StateHCov struct {
	*mat.SymDense
}

// KalmanFilter implements a constant velocity motion model over an 8
// dimensional xyah state.  Velocity terms are damped towards zero between
// observations since construction hazards are largely immobile and detector
// jitter is the dominant noise source rather than real motion
type KalmanFilter struct {
	stdWeightPosition float32
	stdWeightVelocity float32
	// velocityDamping is the per second retention factor applied to the
	// velocity components during prediction
	velocityDamping float32
	updateMat       *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity,
	velocityDamping float32) *KalmanFilter {

	// create updateMat as a 4x8 matrix with first 4 diagonal elements set to 1
	updateMat := mat.NewDense(4, 8, nil)

	for i := 0; i < 4; i++ {
		updateMat.Set(i, i, float64(1.0))
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		velocityDamping:   velocityDamping,
		updateMat:         updateMat,
	}
}

// motionMat builds the state transition matrix for an elapsed time of dt
// seconds.  With a dt of zero the matrix is the identity so prediction is
// a no-op
func (kf *KalmanFilter) motionMat(dt float32) *mat.Dense {

	ndim := 4
	damp := float64(1.0)

	if dt > 0 {
		damp = math.Pow(float64(kf.velocityDamping), float64(dt))
	}

	m := mat.NewDense(8, 8, nil)

	for i := 0; i < ndim; i++ {
		m.Set(i, i, 1.0)
		m.Set(i, ndim+i, float64(dt))
		m.Set(ndim+i, ndim+i, damp)
	}

	return m
}

// Initiate initializes the state mean and covariance from an unassociated
// measurement
func (kf *KalmanFilter) Initiate(mean StateMean, covariance *StateCov,
	measurement Measurement) {

	// copy the first four elements of the measurement into the mean
	copy(mean[:4], measurement[:4])

	// set the last four elements of the mean to 0 (velocity components)
	for i := 4; i < 8; i++ {
		mean[i] = 0.0
	}

	// initialize the standard deviation array for the state variables
	std := make(StateMean, 8)
	std[0] = 2 * kf.stdWeightPosition * measurement[3]  // x position
	std[1] = 2 * kf.stdWeightPosition * measurement[3]  // y position
	std[2] = 1e-2                                       // aspect ratio
	std[3] = 2 * kf.stdWeightPosition * measurement[3]  // height
	std[4] = 10 * kf.stdWeightVelocity * measurement[3] // x velocity
	std[5] = 10 * kf.stdWeightVelocity * measurement[3] // y velocity
	std[6] = 1e-5                                       // aspect ratio velocity
	std[7] = 10 * kf.stdWeightVelocity * measurement[3] // height velocity

	// set the diagonal elements of the covariance matrix to the variances
	for i := 0; i < 8; i++ {
		covariance.Set(i, i, float64(std[i]*std[i]))
	}
}

// Predict advances the state mean and covariance by dt seconds.  A dt of
// zero leaves the state unchanged
func (kf *KalmanFilter) Predict(mean StateMean, covariance *StateCov,
	dt float32) {

	motionMat := kf.motionMat(dt)

	// initialize the standard deviation array for the state variables,
	// scaled by elapsed time so long coasts accumulate uncertainty
	std := make(StateMean, 8)
	std[0] = kf.stdWeightPosition * mean[3] * dt
	std[1] = kf.stdWeightPosition * mean[3] * dt
	std[2] = 1e-2 * dt
	std[3] = kf.stdWeightPosition * mean[3] * dt
	std[4] = kf.stdWeightVelocity * mean[3] * dt
	std[5] = kf.stdWeightVelocity * mean[3] * dt
	std[6] = 1e-5 * dt
	std[7] = kf.stdWeightVelocity * mean[3] * dt

	// create the motion covariance matrix with variances on the diagonal
	motionCov := mat.NewDense(8, 8, nil)

	for i := 0; i < 8; i++ {
		motionCov.Set(i, i, float64(std[i]*std[i]))
	}

	// convert the mean state vector to a matrix for multiplication
	meanMat := mat.NewDense(8, 1, nil)

	for i := 0; i < 8; i++ {
		meanMat.Set(i, 0, float64(mean[i]))
	}

	// predict the next state mean using the motion model
	meanMat.Mul(motionMat, meanMat)

	for i := 0; i < 8; i++ {
		mean[i] = float32(meanMat.At(i, 0))
	}

	// predict the next state covariance using the motion model
	cov := covariance.Dense
	cov.Mul(motionMat, cov)
	cov.Mul(cov, motionMat.T())
	cov.Add(cov, motionCov)
}

// Update performs the measurement update of the state mean and covariance
func (kf *KalmanFilter) Update(mean StateMean, covariance *StateCov,
	measurement Measurement) error {

	// project the state mean and covariance to measurement space
	projectedMean, projectedCov := kf.project(mean, covariance)

	// perform Cholesky factorization of the projected covariance matrix
	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// compute the matrix B for Kalman gain calculation
	B := mat.NewDense(8, 4, nil)
	B.Mul(covariance.Dense, kf.updateMat.T())

	// compute the Kalman gain using the Cholesky factorization
	var kalmanGain mat.Dense
	err := chol.SolveTo(&kalmanGain, B.T())

	if err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	// compute the innovation (measurement residual)
	innovation := make([]float64, 4)

	for i := 0; i < 4; i++ {
		innovation[i] = float64(measurement[i] - projectedMean[i])
	}

	// update the state mean with the innovation
	innovationVec := mat.NewVecDense(4, innovation)
	tmp := mat.NewVecDense(8, nil)
	tmp.MulVec(kalmanGain.T(), innovationVec)

	for i := 0; i < 8; i++ {
		mean[i] += float32(tmp.AtVec(i))
	}

	// update the state covariance
	temp := mat.NewDense(8, 4, nil)
	temp.Mul(kalmanGain.T(), projectedCov)

	temp2 := mat.NewDense(8, 8, nil)
	temp2.Mul(temp, &kalmanGain)

	newCov := mat.NewDense(8, 8, nil)
	newCov.Sub(covariance.Dense, temp2)

	covariance.Dense = newCov

	return nil
}

// GatingDistance returns the squared Mahalanobis distance between the
// predicted state and a measurement.  Age is the seconds elapsed between
// the frame the measurement was computed on and the frame the state has
// been predicted to.  Detection results arrive asynchronously so the
// predicted center is rewound by velocity times age before gating
func (kf *KalmanFilter) GatingDistance(mean StateMean, covariance *StateCov,
	measurement Measurement, age float32) (float32, error) {

	// project the state mean and covariance to measurement space
	projectedMean, projectedCov := kf.project(mean, covariance)

	// rewind the predicted center to the measurement's frame time
	projectedMean[0] -= mean[4] * age
	projectedMean[1] -= mean[5] * age

	// residual between measurement and the time compensated prediction
	residual := mat.NewVecDense(4, nil)

	for i := 0; i < 4; i++ {
		residual.SetVec(i, float64(measurement[i]-projectedMean[i]))
	}

	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return 0, errors.New("failed to factorize projected covariance")
	}

	// solve S * x = residual, the distance is residual dot x
	solved := mat.NewVecDense(4, nil)

	if err := chol.SolveVecTo(solved, residual); err != nil {
		return 0, fmt.Errorf("failed to solve gating system: %w", err)
	}

	return float32(mat.Dot(residual, solved)), nil
}

// PositionVariance returns the filter variance of the x,y center position
func (kf *KalmanFilter) PositionVariance(covariance *StateCov) (float32, float32) {
	return float32(covariance.At(0, 0)), float32(covariance.At(1, 1))
}

// project projects the state mean and covariance to measurement space
func (kf *KalmanFilter) project(mean StateMean,
	covariance *StateCov) (StateHMean, *StateHCov) {

	// compute standard deviations for the measurement noise
	std := make(Measurement, 4)
	std[0] = kf.stdWeightPosition * mean[3]
	std[1] = kf.stdWeightPosition * mean[3]
	std[2] = 1e-1
	std[3] = kf.stdWeightPosition * mean[3]

	// create the innovation covariance matrix (measurement noise covariance)
	innovationCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		innovationCov.SetSym(i, i, float64(std[i]*std[i]))
	}

	// project the state mean to measurement space
	projectedMeanVec := mat.NewVecDense(4, nil)
	projectedMeanVec.MulVec(
		kf.updateMat, mat.NewVecDense(8, func() []float64 {
			data := make([]float64, 8)
			for i, v := range mean {
				data[i] = float64(v)
			}
			return data
		}()),
	)

	// project the state covariance to measurement space
	projectedCov := mat.NewSymDense(4, nil)
	temp := mat.NewDense(4, 8, nil)
	temp.Mul(kf.updateMat, covariance.Dense)
	temp2 := mat.NewDense(4, 4, nil)
	temp2.Mul(temp, kf.updateMat.T())

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			projectedCov.SetSym(i, j, temp2.At(i, j))
		}
	}

	// add the innovation covariance to the projected covariance
	projectedCov.AddSym(projectedCov, innovationCov)

	// convert the projected mean to StateHMean type
	projectedMean := make(StateHMean, 4)

	for i := 0; i < 4; i++ {
		projectedMean[i] = float32(projectedMeanVec.AtVec(i))
	}

	// return the projected mean and covariance
	return projectedMean, &StateHCov{projectedCov}
}
