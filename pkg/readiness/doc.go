/*
Package readiness polls the pods of a freshly applied app version.

A Checker selects pods with main-app=<app>[,app-version=<version>] and
classifies each poll into a types.PodHealth snapshot:

	crashed   a container waiting with CrashLoopBackOff
	creating  a container waiting with ContainerCreating
	running   pod condition Ready=True

Two bounded waits are built on wait.PollUntilContextTimeout:

	WaitUntilNoCreatingPods          every 10s, up to 300s
	WaitUntilAtLeastOnePodIsRunning  every 5s,  up to 300s

The first check runs immediately. Running out of time returns ErrTimeout.
WaitUntilAtLeastOnePodIsRunning returns ErrPodsCrashed from the first poll
that sees a crashed pod, without waiting out the timeout. A failed pod list
counts as "not yet" and polling continues.

IsDeploymentReady is the single-shot check used while scaling.
*/
package readiness
