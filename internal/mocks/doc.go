// Package mocks provides shared test doubles for the gateway's external
// collaborators.
//
// MockDispatcher follows the function-field style: set SendFn or Err to
// control behavior and read Sent afterwards. TestifyMockScanAPI is built on
// testify/mock for tests that assert on the exact calls made to the
// scanning system.
//
//	api := &mocks.TestifyMockScanAPI{}
//	api.On("GetStatus", mock.Anything, "42").Return("Success", nil)
//	defer api.AssertExpectations(t)
package mocks
